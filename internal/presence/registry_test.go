package presence

import (
	"context"
	"testing"
	"time"

	"SafeSignal/internal/models"
	"SafeSignal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPresence(id string, lat, lng float64) models.ResponderPresence {
	return models.ResponderPresence{
		ResponderID:   id,
		UserID:        "user_" + id,
		Lat:           lat,
		Lng:           lng,
		Available:     true,
		ResponderType: models.ResponderTypeMedical,
	}
}

func TestRegistryUpsert(t *testing.T) {
	r := NewRegistry()

	t.Run("last write wins", func(t *testing.T) {
		require.NoError(t, r.Upsert(testPresence("r1", 40.7128, -74.0060)))
		require.NoError(t, r.Upsert(testPresence("r1", 40.7200, -74.0100)))

		p, ok := r.Get("r1")
		require.True(t, ok)
		assert.Equal(t, 40.7200, p.Lat)
		assert.Equal(t, 1, r.Count())
	})

	t.Run("rejects bad coordinates", func(t *testing.T) {
		err := r.Upsert(testPresence("r2", 91, 0))
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))

		err = r.Upsert(testPresence("r2", 0, 200))
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("rejects empty id", func(t *testing.T) {
		err := r.Upsert(testPresence("", 0, 0))
		assert.True(t, errors.IsValidation(err))
	})
}

func TestRegistrySetAvailable(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Upsert(testPresence("r1", 40.7128, -74.0060)))

	require.NoError(t, r.SetAvailable("r1", false))
	p, _ := r.Get("r1")
	assert.False(t, p.Available)

	err := r.SetAvailable("missing", true)
	assert.True(t, errors.IsNotFound(err))
}

type capturePersister struct {
	saved []models.ResponderPresence
}

func (c *capturePersister) SavePresence(p models.ResponderPresence) error {
	c.saved = append(c.saved, p)
	return nil
}

func TestRegistryPersisterMirror(t *testing.T) {
	cp := &capturePersister{}
	r := NewRegistry(WithPersister(cp))

	require.NoError(t, r.Upsert(testPresence("r1", 40.7128, -74.0060)))
	require.NoError(t, r.SetAvailable("r1", false))

	// 每次成功写入都镜像到外部存储
	require.Len(t, cp.saved, 2)
	assert.True(t, cp.saved[0].Available)
	assert.False(t, cp.saved[1].Available)

	// 校验失败不触达持久层
	_ = r.Upsert(testPresence("", 0, 0))
	assert.Len(t, cp.saved, 2)
}

func TestRegistryQuery(t *testing.T) {
	r := NewRegistry()
	center := models.Location{Lat: 40.7128, Lng: -74.0060}

	require.NoError(t, r.Upsert(testPresence("near", 40.7135, -74.0065)))
	require.NoError(t, r.Upsert(testPresence("far", 40.7308, -74.0060))) // 约 2 公里

	unavailable := testPresence("off", 40.7130, -74.0062)
	unavailable.Available = false
	require.NoError(t, r.Upsert(unavailable))

	fire := testPresence("fire1", 40.7131, -74.0061)
	fire.ResponderType = models.ResponderTypeFire
	require.NoError(t, r.Upsert(fire))

	t.Run("radius filter", func(t *testing.T) {
		got := r.Query(center, 1.0, nil)
		ids := idsOf(got)
		assert.Contains(t, ids, "near")
		assert.NotContains(t, ids, "far")
		assert.NotContains(t, ids, "off")
	})

	t.Run("type filter", func(t *testing.T) {
		got := r.Query(center, 1.0, []models.ResponderType{models.ResponderTypeFire})
		require.Len(t, got, 1)
		assert.Equal(t, "fire1", got[0].ResponderID)
	})

	t.Run("zero radius", func(t *testing.T) {
		assert.Empty(t, r.Query(center, 0, nil))
	})
}

func TestRegistryStaleness(t *testing.T) {
	now := time.Now()
	clock := now
	r := NewRegistry(WithStaleWindow(2*time.Minute), WithClock(func() time.Time { return clock }))

	require.NoError(t, r.Upsert(testPresence("r1", 40.7128, -74.0060)))

	center := models.Location{Lat: 40.7128, Lng: -74.0060}
	assert.Len(t, r.Query(center, 1.0, nil), 1)

	// 三分钟后不再可见
	clock = now.Add(3 * time.Minute)
	assert.Empty(t, r.Query(center, 1.0, nil))

	// sweep 真正删除记录
	r.Sweep(context.Background())
	assert.Equal(t, 0, r.Count())
}

func idsOf(ps []models.ResponderPresence) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ResponderID)
	}
	return out
}
