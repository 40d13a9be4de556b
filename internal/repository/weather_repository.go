package repository

import (
	"context"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// WeatherRepository reads recorded weather per flight.
type WeatherRepository interface {
	Find(ctx context.Context, flightNumber, date, station string) (*domain.FlightWeather, error)
	Upsert(ctx context.Context, w domain.FlightWeather) error
}

type weatherRepository struct {
	q Querier
}

// NewWeatherRepository builds repository.
func NewWeatherRepository(q Querier) WeatherRepository {
	return &weatherRepository{q: q}
}

func (r *weatherRepository) Find(ctx context.Context, flightNumber, date, station string) (*domain.FlightWeather, error) {
	const query = `
        SELECT flight_number, flight_date, station, metar, condition, visibility_m, wind
        FROM flight_weather
        WHERE flight_number=UPPER($1) AND flight_date=$2 AND station=UPPER($3)`
	var w domain.FlightWeather
	if err := r.q.QueryRow(ctx, query, flightNumber, date, station).Scan(
		&w.FlightNumber,
		&w.Date,
		&w.Station,
		&w.Metar,
		&w.Condition,
		&w.VisibilityMeters,
		&w.Wind,
	); err != nil {
		return nil, translate(err)
	}
	return &w, nil
}

func (r *weatherRepository) Upsert(ctx context.Context, w domain.FlightWeather) error {
	const query = `
        INSERT INTO flight_weather (flight_number, flight_date, station, metar, condition, visibility_m, wind)
        VALUES (UPPER($1),$2,UPPER($3),$4,$5,$6,$7)
        ON CONFLICT (flight_number, flight_date, station) DO UPDATE
            SET metar=EXCLUDED.metar, condition=EXCLUDED.condition, visibility_m=EXCLUDED.visibility_m, wind=EXCLUDED.wind`
	_, err := r.q.Exec(ctx, query, w.FlightNumber, w.Date, w.Station, w.Metar, w.Condition, w.VisibilityMeters, w.Wind)
	return err
}
