package seed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/config"
	"github.com/spec-kit/complaint-service/internal/repository/memory"
	"github.com/spec-kit/complaint-service/internal/service"
)

const document = `
passengers:
  - pnr: abc123
    customer_name: John Doe
    flight_number: 6E-501
    seat_number: 12A
    source: del
    destination: bom
policies:
  - action_type: Refund
    max_allowed_percentage: 30
    description: partial fare refund
weather:
  - flight_number: 6E-501
    date: "2026-03-01"
    station: del
    metar: VIDP 010530Z 00000KT 0400 FG
    condition: fog
    visibility_meters: 400
resolutions:
  - category: delay
    complaint_text: flight delayed five hours
    action_type: voucher
    outcome: passenger accepted
    percentage: 10
operators:
  - name: Admin
    email: admin@airline.test
    password: secret
    role: admin
`

type fixedEmbedder struct {
	err error
}

func (e fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, e.err
}

func newLoader(t *testing.T, embedder Embedder) (*Loader, *memory.Store) {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.BcryptCost = 4
	store := memory.NewStore()
	authService, err := service.NewAuthService(*cfg, store.Operators())
	require.NoError(t, err)
	return NewLoader(store, authService, embedder, nil), store
}

func TestLoadWritesEverySection(t *testing.T) {
	ctx := context.Background()
	f, err := Parse([]byte(document))
	require.NoError(t, err)

	loader, store := newLoader(t, fixedEmbedder{})
	sum, err := loader.Load(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, Summary{Passengers: 1, Policies: 1, Weather: 1, Resolutions: 1, Operators: 1}, sum)

	p, err := store.Passengers().GetByPNR(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "DEL", p.Source)

	limits, err := store.Policies().List(ctx)
	require.NoError(t, err)
	require.Len(t, limits, 1)
	assert.Equal(t, "refund", limits[0].ActionType)

	w, err := store.Weather().Find(ctx, "6E-501", "2026-03-01", "DEL")
	require.NoError(t, err)
	assert.NotEmpty(t, w.AdverseReason())

	cases, err := store.ResolutionCases().SearchSimilar(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Len(t, cases, 1)

	op, err := store.Operators().GetByEmail(ctx, "admin@airline.test")
	require.NoError(t, err)
	assert.Equal(t, "ADMIN", string(op.Role))
}

func TestLoadIsRepeatable(t *testing.T) {
	ctx := context.Background()
	f, err := Parse([]byte(document))
	require.NoError(t, err)

	loader, _ := newLoader(t, nil)
	_, err = loader.Load(ctx, f)
	require.NoError(t, err)

	sum, err := loader.Load(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Operators)
	assert.Equal(t, 2, sum.Skipped, "resolution without embedder and existing operator")
}

func TestLoadSurfacesEmbedFailure(t *testing.T) {
	f, err := Parse([]byte(document))
	require.NoError(t, err)

	loader, _ := newLoader(t, fixedEmbedder{err: errors.New("quota")})
	_, err = loader.Load(context.Background(), f)
	assert.ErrorContains(t, err, "quota")
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("passenger:\n  - pnr: X\n"))
	assert.Error(t, err)

	f, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, f.Passengers)
}
