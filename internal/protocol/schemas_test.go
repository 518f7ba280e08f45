package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"aetherlib.ai/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", name))
	require.NoError(t, err, "compile %s", name)
	return s
}

func asJSON(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var out any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestSchemas_ValidateMessages(t *testing.T) {
	cases := []struct {
		schema string
		msg    any
	}{
		{"hello.schema.json", protocol.HelloMsg{
			Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "probe",
			Capabilities: protocol.HelloCapabilities{MaxQueue: 8},
		}},
		{"welcome.schema.json", protocol.WelcomeMsg{
			Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version, SessionID: "s1",
			WorldID: "overworld", TickRateHz: 20, Tick: 42, RulesDigest: "deadbeef", AspectCount: 3,
		}},
		{"density_query.schema.json", protocol.DensityQueryMsg{
			Type: protocol.TypeDensityQuery, ProtocolVersion: protocol.Version, ReqID: "q1", Pos: [3]int{1, 64, -2},
		}},
		{"density_report.schema.json", protocol.DensityReportMsg{
			Type: protocol.TypeDensityReport, ProtocolVersion: protocol.Version, ReqID: "q1", Status: 1,
			Tick: 42, Pos: [3]int{1, 64, -2}, Region: "minecraft:plains",
			Structures: []string{"minecraft:village"},
			Base:       map[string]float64{"aetherlib:terra": 5},
			Final:      map[string]float64{"aetherlib:terra": 10},
			OtherTotal: 10,
		}},
		{"density_report.schema.json", protocol.DensityReportMsg{
			Type: protocol.TypeDensityReport, ProtocolVersion: protocol.Version, ReqID: "q2", Status: 0,
		}},
		{"error.schema.json", protocol.NewError("q3", protocol.ErrRateLimit, "slow down")},
	}
	for _, tc := range cases {
		s := compile(t, tc.schema)
		require.NoError(t, s.Validate(asJSON(t, tc.msg)), tc.schema)
	}
}

func TestSchemas_RejectInvalid(t *testing.T) {
	var bad any
	require.NoError(t, json.Unmarshal([]byte(`{"type":"DENSITY_QUERY","protocol_version":"1.0","pos":[1,2]}`), &bad))
	require.Error(t, compile(t, "density_query.schema.json").Validate(bad))

	require.NoError(t, json.Unmarshal([]byte(`{"type":"ERROR","protocol_version":"1.0","code":"nope"}`), &bad))
	require.Error(t, compile(t, "error.schema.json").Validate(bad))
}
