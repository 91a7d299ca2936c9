// Package harness runs analysis scenarios described in YAML against the
// analyzer and compares the outcome with expectations.
package harness

// TestCase represents a single test scenario.
type TestCase struct {
	// Dir is the directory containing the scenario, relative to the
	// testdata root.
	Dir string `yaml:"-"`

	// Configurations defines the analyses to run over the scenario.
	Configurations []Configuration `yaml:"configurations"`
}

// Configuration is one analysis of a scenario and its expected outcome.
type Configuration struct {
	// Name is a descriptive name for this configuration.
	Name string `yaml:"name"`

	// Inputs are program inputs relative to the scenario directory. Defaults
	// to program.yaml.
	Inputs []string `yaml:"inputs,omitempty"`

	// Rules are rule files relative to the scenario directory. Defaults to
	// rules.yaml.
	Rules []string `yaml:"rules,omitempty"`

	// MaxRounds bounds the analysis; zero means the analyzer default.
	MaxRounds int `yaml:"max_rounds,omitempty"`

	// Rounds is the expected number of rounds; zero skips the check.
	Rounds int `yaml:"rounds,omitempty"`

	// ExpectedSeeds lists the seed lines, in any order.
	ExpectedSeeds []string `yaml:"expected_seeds"`

	// ExpectedLive lists the live program classes. Nil skips the check.
	ExpectedLive []string `yaml:"expected_live,omitempty"`

	// ExpectedLiveMethods lists the live methods of program classes. Nil
	// skips the check.
	ExpectedLiveMethods []string `yaml:"expected_live_methods,omitempty"`

	// ExpectedDiscardViolations lists the check-discard items still live.
	ExpectedDiscardViolations []string `yaml:"expected_discard_violations,omitempty"`

	// ExpectedErrors lists any expected error messages for this configuration.
	ExpectedErrors []string `yaml:"expected_errors,omitempty"`
}

func (c *Configuration) inputs() []string {
	if len(c.Inputs) == 0 {
		return []string{"program.yaml"}
	}
	return c.Inputs
}

func (c *Configuration) rules() []string {
	if len(c.Rules) == 0 {
		return []string{"rules.yaml"}
	}
	return c.Rules
}
