package strategy

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/orbgrid/orb-agent/internal/orb"
)

// Curve tables map a motherload bucket to a target number of rounds to
// spread the remaining balance over. They were calibrated offline by
// simulation and ship as versioned data files so recalibration is a config
// change, not a rebuild.

type Bucket struct {
	// MaxMotherloadOrb is the inclusive upper bound of the bucket in whole
	// ORB. Zero marks the open-ended final bucket.
	MaxMotherloadOrb float64 `yaml:"max_motherload_orb"`
	Rounds           uint64  `yaml:"rounds"`
}

type CurveSet struct {
	Version  string              `yaml:"version"`
	Profiles map[string][]Bucket `yaml:"profiles"`
}

// DefaultCurves is the compiled-in calibration used when no curve file is
// configured. Bigger pots justify fewer, larger deployments on every
// profile; the profiles differ in how fast they get there.
func DefaultCurves() *CurveSet {
	return &CurveSet{
		Version: "builtin-1",
		Profiles: map[string][]Bucket{
			string(KindUltraConservative): {
				{MaxMotherloadOrb: 50, Rounds: 500},
				{MaxMotherloadOrb: 200, Rounds: 300},
				{MaxMotherloadOrb: 1000, Rounds: 200},
				{Rounds: 120},
			},
			string(KindBalanced): {
				{MaxMotherloadOrb: 50, Rounds: 200},
				{MaxMotherloadOrb: 200, Rounds: 100},
				{MaxMotherloadOrb: 1000, Rounds: 60},
				{Rounds: 40},
			},
			string(KindAggressive): {
				{MaxMotherloadOrb: 50, Rounds: 60},
				{MaxMotherloadOrb: 200, Rounds: 30},
				{MaxMotherloadOrb: 1000, Rounds: 15},
				{Rounds: 8},
			},
		},
	}
}

func LoadCurves(path string) (*CurveSet, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read curve file %q: %w", path, err)
	}
	var set CurveSet
	if err := yaml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("parse curve file %q: %w", path, err)
	}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("curve file %q: %w", path, err)
	}
	return &set, nil
}

func (s *CurveSet) Validate() error {
	if len(s.Profiles) == 0 {
		return fmt.Errorf("no profiles defined")
	}
	for name, buckets := range s.Profiles {
		if len(buckets) == 0 {
			return fmt.Errorf("profile %q has no buckets", name)
		}
		for i, b := range buckets {
			if b.Rounds == 0 {
				return fmt.Errorf("profile %q bucket %d has zero rounds", name, i)
			}
			if b.MaxMotherloadOrb == 0 && i != len(buckets)-1 {
				return fmt.Errorf("profile %q bucket %d is open-ended but not last", name, i)
			}
		}
		bounded := buckets[:len(buckets)-1]
		if !sort.SliceIsSorted(bounded, func(i, j int) bool {
			return bounded[i].MaxMotherloadOrb < bounded[j].MaxMotherloadOrb
		}) {
			return fmt.Errorf("profile %q buckets are not in ascending motherload order", name)
		}
	}
	return nil
}

// RoundsFor picks the target round count for a motherload (raw units).
func (s *CurveSet) RoundsFor(profile string, motherload uint64) (uint64, error) {
	buckets, ok := s.Profiles[profile]
	if !ok {
		return 0, fmt.Errorf("no curve profile %q (version %s)", profile, s.Version)
	}
	motherloadOrb := float64(motherload) / float64(orb.OrbUnit)
	for _, b := range buckets {
		if b.MaxMotherloadOrb == 0 || motherloadOrb <= b.MaxMotherloadOrb {
			return b.Rounds, nil
		}
	}
	return buckets[len(buckets)-1].Rounds, nil
}
