package main

import (
	"connbench/benchmark"
	dbutils "connbench/dbUtils"
	"connbench/worker"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type BenchmarkArgs struct {
	Connection    dbutils.ConnectionConfig
	worker.Policy `yaml:",inline"`
	Queries       benchmark.Queries
	Scenarios     []string // empty runs all of them
}

// Connection keys whose absence matters, decoded separately from the values
type connectionKeys struct {
	Connection struct {
		User               *string `yaml:"user"`
		IntegratedSecurity *bool   `yaml:"integratedSecurity"`
	} `yaml:"connection"`
}

func defaultArgs() *BenchmarkArgs {
	return &BenchmarkArgs{
		Connection: dbutils.DefaultConnection(),
		Policy:     worker.DefaultPolicy(),
		Queries:    benchmark.DefaultQueries(),
	}
}

// Returns the defaults, overridden by the configFile when one is given.
func buildArgs(configFile string) (*BenchmarkArgs, error) {
	args := defaultArgs()
	if configFile == "" {
		return args, nil
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, args); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", configFile, err)
	}
	args.Queries = args.Queries.WithDefaults()

	// a user in the file means a SQL login unless integrated security is asked for
	keys := connectionKeys{}
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", configFile, err)
	}
	if user := keys.Connection.User; user != nil && *user != "" && keys.Connection.IntegratedSecurity == nil {
		args.Connection.IntegratedSecurity = false
	}

	if err := args.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", configFile, err)
	}

	return args, nil
}
