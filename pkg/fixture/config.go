/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package fixture

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/hyperledger-labs/bnsim/pkg/bundle"
	"github.com/hyperledger-labs/bnsim/pkg/crypto"
	"github.com/hyperledger-labs/bnsim/pkg/flow"
	"github.com/hyperledger-labs/bnsim/pkg/logging"
	"github.com/hyperledger-labs/bnsim/pkg/simnet"
)

const (
	// DefaultNotaryName is the legal name of the notary unless configured otherwise.
	DefaultNotaryName = "O=Notary,L=London,C=GB"

	// DefaultDrainLimit bounds every drain, so that a flow that never stops
	// sending fails the test instead of hanging it.
	DefaultDrainLimit = 100000

	DefaultLogLevel = "warn"
)

// Log formats of the console logger used when Config.Logger is nil.
const (
	LogFormatText   = "text"
	LogFormatJSON   = "json"
	LogFormatPretty = "pretty"
)

// Environment variables overriding the corresponding Config fields, see ApplyEnv.
const (
	EnvDrainLimit = "BNSIM_DRAIN_LIMIT"
	EnvLogLevel   = "BNSIM_LOG_LEVEL"
	EnvLogFormat  = "BNSIM_LOG_FORMAT"
	EnvDirectory  = "BNSIM_DIRECTORY"
	EnvSeed       = "BNSIM_SEED"
)

// Config contains the parameters of the network created for a test.
type Config struct {

	// Number of business network operator (BNO) nodes.
	// BNO i is named O=BNO_<i>,L=New York,C=US, starting from 0.
	NumberOfBusinessNetworks int `yaml:"numberOfBusinessNetworks"`

	// Total number of participant nodes.
	// Participant i is named O=Participant <i>,L=London,C=GB, starting from 1.
	NumberOfParticipants int `yaml:"numberOfParticipants"`

	// Names of the code bundles loaded on every node. Each must resolve in Registry.
	Bundles []string `yaml:"bundles"`

	// Legal name of the notary, DefaultNotaryName if empty.
	NotaryName string `yaml:"notaryName"`

	// Responder kinds looked up in the loaded bundles and registered on every
	// participant, respectively every BNO node.
	ParticipantResponderKinds []flow.Kind `yaml:"participantResponders"`
	BNOResponderKinds         []flow.Kind `yaml:"bnoResponders"`

	Seed int64 `yaml:"seed"`

	// Maximum number of events processed by a single drain, DefaultDrainLimit if zero.
	DrainLimit int `yaml:"drainLimit"`

	// Directory where node journals and the notary database are kept.
	// If empty, nothing is written to disk.
	Directory string `yaml:"directory"`

	// LogLevel and LogFormat of the console logger used when Logger is nil.
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	// Responders registered in addition to the ones named by kind.
	ParticipantResponders []flow.Responder `yaml:"-"`
	BNOResponders         []flow.Responder `yaml:"-"`

	Logger     logging.Logger        `yaml:"-"`
	Mangler    simnet.Mangler        `yaml:"-"`
	Registry   *bundle.Registry      `yaml:"-"`
	EventLog   io.Writer             `yaml:"-"`
	Registerer prometheus.Registerer `yaml:"-"`
}

// DefaultConfig returns a configuration without nodes besides the notary.
func DefaultConfig() Config {
	return Config{
		NotaryName: DefaultNotaryName,
		Seed:       crypto.DefaultPseudoSeed,
		DrainLimit: DefaultDrainLimit,
		LogLevel:   DefaultLogLevel,
		LogFormat:  LogFormatText,
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
// Unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Config{}, errors.WithMessage(err, "could not read config file")
	}
	return ParseConfig(data)
}

// ParseConfig is LoadConfig on the contents of a file.
func ParseConfig(data []byte) (Config, error) {
	config := DefaultConfig()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && err != io.EOF {
		return Config{}, errors.WithMessage(err, "could not parse config")
	}

	return config, nil
}

// ApplyEnv overrides fields with the BNSIM_* environment variables that are set.
func (c *Config) ApplyEnv() error {
	if val := os.Getenv(EnvDrainLimit); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil {
			return errors.WithMessagef(err, "could not parse %s", EnvDrainLimit)
		}
		c.DrainLimit = limit
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		if _, err := logging.ParseLevel(val); err != nil {
			return errors.WithMessagef(err, "could not parse %s", EnvLogLevel)
		}
		c.LogLevel = val
	}

	if val := os.Getenv(EnvLogFormat); val != "" {
		c.LogFormat = val
	}

	if val := os.Getenv(EnvDirectory); val != "" {
		c.Directory = val
	}

	if val := os.Getenv(EnvSeed); val != "" {
		seed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return errors.WithMessagef(err, "could not parse %s", EnvSeed)
		}
		c.Seed = seed
	}

	return nil
}

func (c *Config) validate() error {
	switch {
	case c.NumberOfBusinessNetworks < 0:
		return errors.Errorf("negative number of business networks: %d", c.NumberOfBusinessNetworks)
	case c.NumberOfParticipants < 0:
		return errors.Errorf("negative number of participants: %d", c.NumberOfParticipants)
	case c.DrainLimit < 0:
		return errors.Errorf("negative drain limit: %d", c.DrainLimit)
	}
	return nil
}

func (c *Config) logger() (logging.Logger, error) {
	if c.Logger != nil {
		return c.Logger, nil
	}
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	switch c.LogFormat {
	case "", LogFormatText:
		return logging.Console(level), nil
	case LogFormatJSON:
		return logging.NewJSONLogger(os.Stdout, level), nil
	case LogFormatPretty:
		return logging.NewPrettyLogger(os.Stdout, level), nil
	default:
		return nil, errors.Errorf("unknown log format %q", c.LogFormat)
	}
}
