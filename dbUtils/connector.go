package dbutils

import (
	"context"
	"database/sql/driver"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
)

// Where and how to connect. Treated as immutable once loaded.
type ConnectionConfig struct {
	Driver                 string `yaml:"driver"` // sqlserver | postgres | mysql | sqlite3
	Server                 string `yaml:"server"`
	Catalog                string `yaml:"catalog"`
	IntegratedSecurity     bool   `yaml:"integratedSecurity"`
	TrustServerCertificate bool   `yaml:"trustServerCertificate"`
	User                   string `yaml:"user"`
	Password               string `yaml:"password"`
	// Extra driver options, added to the DSN after (and over) the derived ones
	Params map[string]string `yaml:"params"`
}

// The local SQL Server instance the measurements were originally taken against
func DefaultConnection() ConnectionConfig {
	return ConnectionConfig{
		Driver:                 "sqlserver",
		Server:                 `(local)\SQLSERVER2019_D`,
		Catalog:                "Sandbox",
		IntegratedSecurity:     true,
		TrustServerCertificate: true,
	}
}

// Returns the driver connector for the configuration
func Connector(cfg ConnectionConfig) (driver.Connector, error) {
	if cfg.IntegratedSecurity && cfg.User != "" && cfg.Driver != "sqlite3" {
		return nil, fmt.Errorf("user %q is set together with integrated security", cfg.User)
	}

	switch cfg.Driver {
	case "sqlserver":
		config, err := sqlServerConfig(cfg)
		if err != nil {
			return nil, err
		}
		return mssql.NewConnectorConfig(config), nil
	case "postgres":
		return pq.NewConnector(postgresDSN(cfg))
	case "mysql":
		mysqlCfg, err := mysqlConfig(cfg)
		if err != nil {
			return nil, err
		}
		return mysql.NewConnector(mysqlCfg)
	case "sqlite3":
		return &dsnConnector{dsn: sqliteDSN(cfg), driver: &sqlite3.SQLiteDriver{}}, nil
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

// Server, catalog and options go through the go-mssqldb connection string parser, which
// resolves (local), host\instance and host,port. Credentials are set on the parsed config
// so they need no quoting. Without a user, go-mssqldb authenticates with the identity of
// the process.
func sqlServerConfig(cfg ConnectionConfig) (msdsn.Config, error) {
	parts := []string{
		"server=" + cfg.Server,
		"database=" + cfg.Catalog,
		"TrustServerCertificate=" + strconv.FormatBool(cfg.TrustServerCertificate),
	}
	for _, k := range sortedKeys(cfg.Params) {
		parts = append(parts, k+"="+cfg.Params[k])
	}

	config, err := msdsn.Parse(strings.Join(parts, ";"))
	if err != nil {
		return config, fmt.Errorf("parsing sqlserver connection: %w", err)
	}
	if !cfg.IntegratedSecurity {
		config.User = cfg.User
		config.Password = cfg.Password
	}
	return config, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// key=value pairs; lib/pq falls back to the OS user when no user is given
func postgresDSN(cfg ConnectionConfig) string {
	params := map[string]string{
		"dbname":  cfg.Catalog,
		"sslmode": "verify-full",
	}
	if cfg.TrustServerCertificate {
		params["sslmode"] = "require"
	}

	host, port, err := net.SplitHostPort(cfg.Server)
	if err != nil {
		host = cfg.Server
	}
	params["host"] = host
	if port != "" {
		params["port"] = port
	}

	if !cfg.IntegratedSecurity {
		params["user"] = cfg.User
		params["password"] = cfg.Password
	}
	for k, v := range cfg.Params {
		params[k] = v
	}

	pairs := make([]string, 0, len(params))
	for _, k := range sortedKeys(params) {
		pairs = append(pairs, k+"="+quotePostgres(params[k]))
	}
	return strings.Join(pairs, " ")
}

func quotePostgres(value string) string {
	if value != "" && !strings.ContainsAny(value, ` '\`) {
		return value
	}
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `'`, `\'`)
	return "'" + value + "'"
}

func mysqlConfig(cfg ConnectionConfig) (*mysql.Config, error) {
	if cfg.IntegratedSecurity {
		return nil, fmt.Errorf("driver mysql does not support integrated security")
	}

	c := mysql.NewConfig()
	c.Net = "tcp"
	c.Addr = cfg.Server
	c.DBName = cfg.Catalog
	c.User = cfg.User
	c.Passwd = cfg.Password
	if cfg.TrustServerCertificate {
		c.TLSConfig = "skip-verify"
	} else {
		c.TLSConfig = "true"
	}
	if len(cfg.Params) > 0 {
		c.Params = map[string]string{}
		for k, v := range cfg.Params {
			c.Params[k] = v
		}
	}
	return c, nil
}

// The server is the database file; options become a file: URI query
func sqliteDSN(cfg ConnectionConfig) string {
	if len(cfg.Params) == 0 {
		return cfg.Server
	}
	query := url.Values{}
	for k, v := range cfg.Params {
		query.Set(k, v)
	}
	return "file:" + cfg.Server + "?" + query.Encode()
}

// Adapts a driver without its own connector, the way database/sql does for sql.Open
type dsnConnector struct {
	dsn    string
	driver driver.Driver
}

func (c *dsnConnector) Connect(_ context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c *dsnConnector) Driver() driver.Driver {
	return c.driver
}
