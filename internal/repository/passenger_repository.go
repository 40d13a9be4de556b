package repository

import (
	"context"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// PassengerRepository reads canonical booking data.
type PassengerRepository interface {
	GetByPNR(ctx context.Context, pnr string) (*domain.Passenger, error)
	Upsert(ctx context.Context, p *domain.Passenger) error
}

type passengerRepository struct {
	q Querier
}

// NewPassengerRepository builds repository.
func NewPassengerRepository(q Querier) PassengerRepository {
	return &passengerRepository{q: q}
}

func (r *passengerRepository) GetByPNR(ctx context.Context, pnr string) (*domain.Passenger, error) {
	const query = `
        SELECT pnr, customer_name, flight_number, seat_number, source, destination, created_at
        FROM passengers WHERE pnr=UPPER($1)`
	var p domain.Passenger
	if err := r.q.QueryRow(ctx, query, pnr).Scan(
		&p.PNR,
		&p.CustomerName,
		&p.FlightNumber,
		&p.SeatNumber,
		&p.Source,
		&p.Destination,
		&p.CreatedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *passengerRepository) Upsert(ctx context.Context, p *domain.Passenger) error {
	const query = `
        INSERT INTO passengers (pnr, customer_name, flight_number, seat_number, source, destination)
        VALUES (UPPER($1),$2,$3,$4,UPPER($5),UPPER($6))
        ON CONFLICT (pnr) DO UPDATE SET customer_name=EXCLUDED.customer_name, flight_number=EXCLUDED.flight_number,
            seat_number=EXCLUDED.seat_number, source=EXCLUDED.source, destination=EXCLUDED.destination
        RETURNING created_at`
	return r.q.QueryRow(ctx, query,
		p.PNR,
		p.CustomerName,
		p.FlightNumber,
		p.SeatNumber,
		p.Source,
		p.Destination,
	).Scan(&p.CreatedAt)
}
