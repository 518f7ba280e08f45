package tuning

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"aetherlib.ai/internal/sim/aspects"
	"aetherlib.ai/internal/sim/corruption"
	"aetherlib.ai/internal/sim/node"
	"aetherlib.ai/internal/sim/worldgen"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int   `yaml:"tick_rate_hz"         env:"AETHER_TICK_RATE_HZ"`
	SnapshotEveryTicks int64 `yaml:"snapshot_every_ticks" env:"AETHER_SNAPSHOT_EVERY_TICKS"`
	ArchiveEveryTicks  int64 `yaml:"archive_every_ticks"  env:"AETHER_ARCHIVE_EVERY_TICKS"`
	KeepSnapshots      int   `yaml:"keep_snapshots"       env:"AETHER_KEEP_SNAPSHOTS"`
	Workers            int   `yaml:"workers"              env:"AETHER_WORKERS"`
	Seed               int64 `yaml:"seed"                 env:"AETHER_SEED"`

	// ClampNegative drops non-positive aspects from resolved densities.
	ClampNegative bool `yaml:"clamp_negative" env:"AETHER_CLAMP_NEGATIVE"`

	Corruption Corruption `yaml:"corruption" envPrefix:"AETHER_CORRUPTION_"`
	Nodes      Nodes      `yaml:"nodes"      envPrefix:"AETHER_NODE_"`
	World      World      `yaml:"world"      envPrefix:"AETHER_WORLD_"`
	Transport  Transport  `yaml:"transport"  envPrefix:"AETHER_WS_"`
}

type Corruption struct {
	Aspect         string  `yaml:"aspect"          env:"ASPECT"`
	ConversionRate float64 `yaml:"conversion_rate" env:"CONVERSION_RATE"`
	MutationChance float64 `yaml:"mutation_chance" env:"MUTATION_CHANCE"`
	RadiusXZ       int     `yaml:"radius_xz"       env:"RADIUS_XZ"`
	RadiusY        int     `yaml:"radius_y"        env:"RADIUS_Y"`
}

type Nodes struct {
	RegenRate            float64 `yaml:"regen_rate"            env:"REGEN_RATE"`
	SinisterInterval     int     `yaml:"sinister_interval"     env:"SINISTER_INTERVAL"`
	SinisterAmount       float64 `yaml:"sinister_amount"       env:"SINISTER_AMOUNT"`
	HungerInterval       int     `yaml:"hunger_interval"       env:"HUNGER_INTERVAL"`
	UnstableInterval     int     `yaml:"unstable_interval"     env:"UNSTABLE_INTERVAL"`
	InstabilityThreshold int     `yaml:"instability_threshold" env:"INSTABILITY_THRESHOLD"`
	ExplosionPower       float64 `yaml:"explosion_power"       env:"EXPLOSION_POWER"`
	// EmptyPolicy is "keep" or "terminate".
	EmptyPolicy string `yaml:"empty_policy" env:"EMPTY_POLICY"`
}

type World struct {
	RegionSize     int      `yaml:"region_size"      env:"REGION_SIZE"`
	Regions        []string `yaml:"regions"          env:"REGIONS"    envSeparator:","`
	Structures     []string `yaml:"structures"       env:"STRUCTURES" envSeparator:","`
	StructureCell  int      `yaml:"structure_cell"   env:"STRUCTURE_CELL"`
	StructureRange int      `yaml:"structure_range"  env:"STRUCTURE_RANGE"`
	DeadZoneChance float64  `yaml:"dead_zone_chance" env:"DEAD_ZONE_CHANCE"`
}

type Transport struct {
	QueriesPerSecond float64 `yaml:"queries_per_second" env:"QPS"`
	QueryBurst       int     `yaml:"query_burst"        env:"BURST"`
}

func Defaults() Tuning {
	nc := node.DefaultConfig()
	cc := corruption.DefaultConfig()
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         20,
		SnapshotEveryTicks: 6000,
		ArchiveEveryTicks:  72000,
		KeepSnapshots:      48,
		Workers:            4,
		Seed:               1337,
		Corruption: Corruption{
			Aspect:         cc.Aspect.String(),
			ConversionRate: cc.ConversionRate,
			MutationChance: cc.MutationChance,
			RadiusXZ:       cc.RadiusXZ,
			RadiusY:        cc.RadiusY,
		},
		Nodes: Nodes{
			RegenRate:            nc.RegenRate,
			SinisterInterval:     nc.SinisterInterval,
			SinisterAmount:       nc.SinisterAmount,
			HungerInterval:       nc.HungerInterval,
			UnstableInterval:     nc.UnstableInterval,
			InstabilityThreshold: nc.InstabilityThreshold,
			ExplosionPower:       nc.ExplosionPower,
			EmptyPolicy:          "keep",
		},
		World: World{
			RegionSize:     64,
			Regions:        []string{"minecraft:plains", "minecraft:forest", "minecraft:desert", "minecraft:swamp"},
			Structures:     []string{"minecraft:village"},
			StructureCell:  128,
			StructureRange: 24,
			DeadZoneChance: 0.001,
		},
		Transport: Transport{
			QueriesPerSecond: 20,
			QueryBurst:       40,
		},
	}
}

// Load reads tuning.yaml over Defaults and then applies AETHER_* environment
// overrides. An empty path skips the file.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return t, err
		}
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return t, fmt.Errorf("tuning.yaml: %w", err)
		}
	}
	if err := env.Parse(&t); err != nil {
		return t, fmt.Errorf("tuning env: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tuning: tick_rate_hz must be > 0")
	}
	if t.ArchiveEveryTicks < 0 || t.KeepSnapshots < 0 {
		return fmt.Errorf("tuning: archive_every_ticks and keep_snapshots must be >= 0")
	}
	if t.Workers <= 0 {
		return fmt.Errorf("tuning: workers must be > 0")
	}
	if t.Corruption.ConversionRate < 0 || t.Corruption.ConversionRate > 1 {
		return fmt.Errorf("tuning: corruption.conversion_rate out of range")
	}
	if t.Corruption.MutationChance < 0 || t.Corruption.MutationChance > 1 {
		return fmt.Errorf("tuning: corruption.mutation_chance out of range")
	}
	if t.World.RegionSize <= 0 || t.World.StructureCell <= 0 {
		return fmt.Errorf("tuning: world cell sizes must be > 0")
	}
	if _, err := node.ParseEmptyPolicy(t.Nodes.EmptyPolicy); err != nil {
		return fmt.Errorf("tuning: %w", err)
	}
	if _, err := aspects.ParseID(t.Corruption.Aspect); err != nil {
		return fmt.Errorf("tuning: corruption.aspect: %w", err)
	}
	return nil
}

func (t Tuning) CorruptionConfig() (corruption.Config, error) {
	id, err := aspects.ParseID(t.Corruption.Aspect)
	if err != nil {
		return corruption.Config{}, err
	}
	return corruption.Config{
		Aspect:         id,
		ConversionRate: t.Corruption.ConversionRate,
		MutationChance: t.Corruption.MutationChance,
		RadiusXZ:       t.Corruption.RadiusXZ,
		RadiusY:        t.Corruption.RadiusY,
	}, nil
}

func (t Tuning) NodeConfig() (node.Config, error) {
	policy, err := node.ParseEmptyPolicy(t.Nodes.EmptyPolicy)
	if err != nil {
		return node.Config{}, err
	}
	cfg := node.DefaultConfig()
	cfg.RegenRate = t.Nodes.RegenRate
	cfg.SinisterInterval = t.Nodes.SinisterInterval
	cfg.SinisterAmount = t.Nodes.SinisterAmount
	cfg.HungerInterval = t.Nodes.HungerInterval
	cfg.UnstableInterval = t.Nodes.UnstableInterval
	cfg.InstabilityThreshold = t.Nodes.InstabilityThreshold
	cfg.ExplosionPower = t.Nodes.ExplosionPower
	cfg.EmptyPolicy = policy
	if id, err := aspects.ParseID(t.Corruption.Aspect); err == nil {
		cfg.CorruptionAspect = id
	}
	return cfg, nil
}

// WorldConfig builds the reference world layout. seed overrides Seed when
// non-zero.
func (t Tuning) WorldConfig(seed int64) (worldgen.Config, error) {
	if seed == 0 {
		seed = t.Seed
	}
	regions, err := parseIDs(t.World.Regions)
	if err != nil {
		return worldgen.Config{}, fmt.Errorf("tuning: world.regions: %w", err)
	}
	structures, err := parseIDs(t.World.Structures)
	if err != nil {
		return worldgen.Config{}, fmt.Errorf("tuning: world.structures: %w", err)
	}
	return worldgen.Config{
		Seed:           seed,
		RegionSize:     t.World.RegionSize,
		Regions:        regions,
		Structures:     structures,
		StructureCell:  t.World.StructureCell,
		StructureRange: t.World.StructureRange,
		DeadZoneChance: t.World.DeadZoneChance,
	}, nil
}

func parseIDs(in []string) ([]aspects.ID, error) {
	out := make([]aspects.ID, 0, len(in))
	for _, s := range in {
		id, err := aspects.ParseID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
