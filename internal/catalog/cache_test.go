package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	*memoryRepo
	getByID   int
	getBySpec int
}

func (r *countingRepo) GetByID(ctx context.Context, id int64) (FinishedGood, error) {
	r.getByID++
	return r.memoryRepo.GetByID(ctx, id)
}

func (r *countingRepo) GetBySpec(ctx context.Context, spec Spec) (FinishedGood, error) {
	r.getBySpec++
	return r.memoryRepo.GetBySpec(ctx, spec)
}

func newCachedRepo(t *testing.T) (*CachedRepository, *countingRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := &countingRepo{memoryRepo: newMemoryRepo()}
	return NewCachedRepository(repo, NewCache(client, time.Minute)), repo
}

func TestCachedRepositoryGetByID(t *testing.T) {
	cached, repo := newCachedRepo(t)
	ctx := context.Background()

	id, err := cached.Create(ctx, FinishedGood{
		Model: "NU", Type: TypeFoot, Ratio: "20", Power: "1HP",
		RatePerUnit: decimal.NewFromInt(12500),
	})
	require.NoError(t, err)

	first, err := cached.GetByID(ctx, id)
	require.NoError(t, err)
	second, err := cached.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.True(t, first.RatePerUnit.Equal(second.RatePerUnit))
	require.Equal(t, 1, repo.getByID)
}

func TestCachedRepositoryInvalidatesOnWrite(t *testing.T) {
	cached, repo := newCachedRepo(t)
	ctx := context.Background()

	id, err := cached.Create(ctx, FinishedGood{Model: "SU", Type: TypeFoot, Ratio: "40", Power: "2HP"})
	require.NoError(t, err)

	fg, err := cached.GetByID(ctx, id)
	require.NoError(t, err)
	require.Zero(t, fg.Units)

	require.NoError(t, cached.IncrementUnits(ctx, id))

	fg, err = cached.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(1), fg.Units)
	require.Equal(t, 2, repo.getByID)
}

func TestCachedRepositoryMissesAreNotCached(t *testing.T) {
	cached, repo := newCachedRepo(t)
	ctx := context.Background()

	_, err := cached.GetBySpec(ctx, Spec{Model: "XX", Type: TypeFoot, Ratio: "5", Power: "1HP"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = cached.GetBySpec(ctx, Spec{Model: "XX", Type: TypeFoot, Ratio: "5", Power: "1HP"})
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 2, repo.getBySpec)
}
