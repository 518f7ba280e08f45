package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"aetherlib.ai/internal/sim/aether"
	"aetherlib.ai/internal/sim/aspects"
	"aetherlib.ai/internal/sim/catalogs"
	"aetherlib.ai/internal/sim/density"
	"aetherlib.ai/internal/sim/geom"
)

type flatWorld struct{}

func (flatWorld) RegionAt(pos geom.Vec3i) density.Location {
	if pos.Y < 0 {
		return density.Location{}
	}
	return density.Location{Region: aspects.MustID("minecraft:plains")}
}
func (flatWorld) Corrupt(context.Context, geom.Vec3i) error          { return nil }
func (flatWorld) Explode(context.Context, geom.Vec3i, float64) error { return nil }

func newAdmin(t *testing.T, hooks Hooks) (*aether.Runtime, *httptest.Server) {
	t.Helper()
	rt, err := aether.New(aether.Config{Seed: 1}, flatWorld{}, nil, nil)
	require.NoError(t, err)
	rt.Reload(&catalogs.Catalogs{Densities: catalogs.DensityCatalog{
		Regions: density.Table{
			aspects.MustID("minecraft:plains"): aspects.VectorOf(map[aspects.ID]float64{aspects.MustID("terra"): 5}),
		},
	}})

	mux := http.NewServeMux()
	NewServer(rt, hooks, nil).Register(mux)
	hs := httptest.NewServer(mux)
	t.Cleanup(hs.Close)
	return rt, hs
}

func do(t *testing.T, method, url string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAdmin_DensityAndInject(t *testing.T) {
	rt, hs := newAdmin(t, Hooks{})

	var d densityResponse
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, hs.URL+"/admin/v1/density?x=1&y=64&z=1", &d))
	require.Equal(t, aether.StatusSuccess, d.Status)
	require.Equal(t, "minecraft:plains", d.Region)
	require.Equal(t, 5.0, d.Final["aetherlib:terra"])
	require.False(t, d.Corrupted)

	var inj map[string]any
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, hs.URL+"/admin/v1/corruption?x=1&y=64&z=1", &inj))
	require.EqualValues(t, aether.StatusSuccess, inj["status"])
	require.EqualValues(t, aether.DefaultInjectAmount, inj["amount"])
	require.Equal(t, 10.0, rt.Deltas().Modification(aspects.MustID("minecraft:plains"), aspects.Vitium))

	require.Equal(t, http.StatusOK, do(t, http.MethodGet, hs.URL+"/admin/v1/density?x=1&y=64&z=1", &d))
	require.True(t, d.Corrupted)

	require.Equal(t, http.StatusOK, do(t, http.MethodPost, hs.URL+"/admin/v1/corruption?x=1&y=-5&z=1&amount=3", &inj))
	require.EqualValues(t, aether.StatusFailure, inj["status"])

	for _, amt := range []string{"NaN", "Inf", "-Inf", "abc"} {
		require.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, hs.URL+"/admin/v1/corruption?x=1&y=64&z=1&amount="+amt, nil), amt)
	}
	require.Equal(t, 10.0, rt.Deltas().Modification(aspects.MustID("minecraft:plains"), aspects.Vitium))

	require.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, hs.URL+"/admin/v1/density?x=1&y=oops&z=1", nil))
	require.Equal(t, http.StatusMethodNotAllowed, do(t, http.MethodGet, hs.URL+"/admin/v1/corruption?x=1&y=1&z=1", nil))

	var list struct {
		Status  int                 `json:"status"`
		Regions []regionDensityJSON `json:"regions"`
	}
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, hs.URL+"/admin/v1/densities", &list))
	require.Len(t, list.Regions, 1)
}

func TestAdmin_Nodes(t *testing.T) {
	rt, hs := newAdmin(t, Hooks{})

	var created nodeJSON
	require.Equal(t, http.StatusCreated, do(t, http.MethodPost, hs.URL+"/admin/v1/nodes?type=sinister&x=0&y=70&z=0", &created))
	require.Equal(t, "sinister", created.Type)
	require.NotEmpty(t, created.ID)

	var nodes []nodeJSON
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, hs.URL+"/admin/v1/nodes", &nodes))
	require.Len(t, nodes, 1)

	var st stateResponse
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, hs.URL+"/admin/v1/state", &st))
	require.Equal(t, 1, st.NodesAlive)
	require.Equal(t, rt.ID(), st.WorldID)

	require.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, hs.URL+"/admin/v1/nodes?type=cursed&x=0&y=0&z=0", nil))
	require.Equal(t, http.StatusNoContent, do(t, http.MethodDelete, hs.URL+"/admin/v1/nodes?id="+created.ID, nil))
	require.Equal(t, http.StatusNotFound, do(t, http.MethodDelete, hs.URL+"/admin/v1/nodes?id="+created.ID, nil))
	require.Empty(t, rt.Nodes())
}

func TestAdmin_Hooks(t *testing.T) {
	_, hs := newAdmin(t, Hooks{
		Reload:   func() (uint64, error) { return 7, nil },
		Snapshot: func(ctx context.Context) (string, uint64, error) { return "/data/12.snap.zst", 12, nil },
		Sessions: func() int64 { return 3 },
	})

	var out map[string]any
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, hs.URL+"/admin/v1/reload", &out))
	require.EqualValues(t, 7, out["version"])

	require.Equal(t, http.StatusOK, do(t, http.MethodPost, hs.URL+"/admin/v1/snapshot", &out))
	require.EqualValues(t, 12, out["tick"])
	require.Equal(t, "/data/12.snap.zst", out["path"])

	var st stateResponse
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, hs.URL+"/admin/v1/state", &st))
	require.EqualValues(t, 3, st.Sessions)
}

func TestAdmin_MissingHooks(t *testing.T) {
	_, hs := newAdmin(t, Hooks{})
	require.Equal(t, http.StatusNotImplemented, do(t, http.MethodPost, hs.URL+"/admin/v1/reload", nil))
	require.Equal(t, http.StatusNotImplemented, do(t, http.MethodPost, hs.URL+"/admin/v1/snapshot", nil))
}

func TestAdmin_RejectsRemoteCallers(t *testing.T) {
	rt, err := aether.New(aether.Config{}, flatWorld{}, nil, nil)
	require.NoError(t, err)
	mux := http.NewServeMux()
	NewServer(rt, Hooks{}, nil).Register(mux)

	for _, path := range []string{"/admin/v1/state", "/admin/v1/nodes"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.1.2.3:5555"
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code, path)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	require.True(t, isLoopbackRemote("127.0.0.1:80"))
	require.True(t, isLoopbackRemote("[::1]:80"))
	require.False(t, isLoopbackRemote("192.168.0.2:80"))
	require.False(t, isLoopbackRemote("garbage"))
}
