// package baccmd implements the baci command line tool.
package baccmd

import (
	"context"
	"net"
	"strconv"

	"github.com/jmoiron/sqlx"
	"go.brendoncarroll.net/star"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"nsbaci.org/nsbaci/bacss"
)

func Root() star.Command {
	return root
}

var root = star.NewDir(star.Metadata{
	Short: "BACI concurrent program interpreter",
}, map[star.Symbol]star.Command{
	"run": run,
	"asm": asm,
	"dis": dis,

	"serve":    serve,
	"create":   create,
	"sessions": sessions,
	"drop":     drop,
	"history":  history,

	"status": status,
})

var status = star.Command{
	Metadata: star.Metadata{
		Short: "check that the database can be opened",
	},
	Flags: []star.IParam{DBParam},
	F: func(c star.Context) error {
		c.Printf("STATUS\n")
		db := DBParam.Load(c)
		if err := db.Ping(); err != nil {
			return err
		}
		return db.Close()
	},
}

var DBParam = star.Param[*sqlx.DB]{
	Name:    "db",
	Default: star.Ptr("baci.db"),
	Parse: func(x string) (*sqlx.DB, error) {
		db, err := bacss.OpenDB(x)
		if err != nil {
			return nil, err
		}
		if err := bacss.SetupDB(context.Background(), db); err != nil {
			return nil, err
		}
		return db, nil
	},
}

var ListenerParam = star.Param[net.Listener]{
	Name:    "l",
	Default: star.Ptr("127.0.0.1:6667"),
	Parse: func(x string) (net.Listener, error) {
		return net.Listen("tcp", x)
	},
}

var debugParam = star.Param[bool]{
	Name:    "debug",
	Default: star.Ptr("false"),
	Parse:   strconv.ParseBool,
}

// logContext returns the command's context with a logger installed.
// Only warnings and errors are logged unless --debug is set.
func logContext(c star.Context) (context.Context, error) {
	var l *zap.Logger
	var err error
	if debugParam.Load(c) {
		l, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		l, err = cfg.Build()
	}
	if err != nil {
		return nil, err
	}
	return logctx.NewContext(c.Context, l), nil
}
