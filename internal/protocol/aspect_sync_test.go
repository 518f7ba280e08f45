package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"aetherlib.ai/internal/sim/aspects"
)

func testRegistry() *aspects.Registry {
	return aspects.NewRegistry([]aspects.Entry{
		{ID: aspects.MustID("aetherlib:ignis"), Def: aspects.Def{Name: "Ignis", Tier: aspects.TierPrimal}},
		{ID: aspects.MustID("aetherlib:aqua"), Def: aspects.Def{Name: "Aqua", TextureLocation: "custom:tex/aqua.png"}},
		{ID: aspects.MustID("othermod:ferrum"), Def: aspects.Def{Name: "Ferrum"}},
	})
}

func TestAspectSync_RoundTrip(t *testing.T) {
	in := NewAspectSync(testRegistry(), false)
	require.False(t, in.Legacy)
	require.Len(t, in.Names, 3)
	require.Equal(t, "Aqua", in.Names[0].Name)

	b, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, AspectSyncTag, b[0])

	var out AspectSync
	require.NoError(t, out.UnmarshalBinary(b))
	require.Equal(t, in, out)

	reg, err := out.Registry()
	require.NoError(t, err)
	def, ok := reg.Def(aspects.MustID("aetherlib:aqua"))
	require.True(t, ok)
	require.Equal(t, "custom:tex/aqua.png", def.TextureLocation)
	def, ok = reg.Def(aspects.MustID("aetherlib:ignis"))
	require.True(t, ok)
	require.Equal(t, "aetherlib:textures/aspects_icons/ignis.png", def.TextureLocation)
}

func TestAspectSync_LegacySenderKeepsNamesOnly(t *testing.T) {
	b, err := NewAspectSync(testRegistry(), true).MarshalBinary()
	require.NoError(t, err)

	var out AspectSync
	require.NoError(t, out.UnmarshalBinary(b))
	require.True(t, out.Legacy)
	require.Nil(t, out.Aspects)
	require.Len(t, out.Names, 3)

	reg, err := out.Registry()
	require.NoError(t, err)
	id, ok := reg.Lookup("Ferrum")
	require.True(t, ok)
	require.Equal(t, "othermod:ferrum", id.String())
	def, _ := reg.Def(id)
	require.Empty(t, def.TextureLocation)
}

func TestAspectSync_EmptyRecordSectionIsLegacy(t *testing.T) {
	s := AspectSync{Names: []NameMapping{{Name: "Ignis", ID: "aetherlib:ignis"}}}
	b, err := s.MarshalBinary()
	require.NoError(t, err)

	var out AspectSync
	require.NoError(t, out.UnmarshalBinary(b))
	require.True(t, out.Legacy)
	require.Len(t, out.Names, 1)
}

func TestAspectSync_RejectsMalformedFrames(t *testing.T) {
	good, err := NewAspectSync(testRegistry(), false).MarshalBinary()
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":      nil,
		"wrong tag":  append([]byte{0x7f}, good[1:]...),
		"truncated":  good[:len(good)-2],
		"trailing":   append(append([]byte{}, good...), 0x00),
		"huge count": {AspectSyncTag, 0xff, 0xff, 0xff, 0xff},
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			var out AspectSync
			require.Error(t, out.UnmarshalBinary(b))
		})
	}
}

func TestAspectSync_RegistryRejectsBadIDs(t *testing.T) {
	s := AspectSync{Aspects: []AspectRecord{{ID: "Bad ID!", Name: "x"}}}
	_, err := s.Registry()
	require.Error(t, err)
}
