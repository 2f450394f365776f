package baccmd

import (
	"strconv"

	"go.brendoncarroll.net/star"
	"golang.org/x/sync/errgroup"

	"nsbaci.org/nsbaci/bacimg"
	"nsbaci.org/nsbaci/bacrt"
	"nsbaci.org/nsbaci/bacss"
	"nsbaci.org/nsbaci/bacss/bachui"
)

var serve = star.Command{
	Metadata: star.Metadata{
		Short: "serve the sessions in this system over HTTP",
	},
	Flags: []star.IParam{DBParam, ListenerParam, configParam, debugParam},
	F: func(c star.Context) error {
		ctx, err := logContext(c)
		if err != nil {
			return err
		}
		db := DBParam.Load(c)
		defer db.Close()
		cfg, err := buildConfig(configParam.Load(c), 0, 0)
		if err != nil {
			return err
		}
		sys := bacss.NewSystem(db, cfg)
		lis := ListenerParam.Load(c)

		eg, ctx := errgroup.WithContext(ctx)
		eg.Go(func() error { return bachui.Serve(ctx, lis, sys) })
		return eg.Wait()
	},
}

var create = star.Command{
	Metadata: star.Metadata{
		Short: "create a session running a program",
		Tags:  []string{"session"},
	},
	Flags: []star.IParam{DBParam, fileParam, configParam},
	F: func(c star.Context) error {
		db := DBParam.Load(c)
		defer db.Close()
		cfg, err := buildConfig(configParam.Load(c), 0, 0)
		if err != nil {
			return err
		}
		img, err := bacimg.LoadFile(fileParam.Load(c))
		if err != nil {
			return err
		}
		sys := bacss.NewSystem(db, cfg)
		sess, err := sys.Create(c, img)
		if err != nil {
			return err
		}
		c.Printf("created session %d\n", sess.ID())
		return nil
	},
}

var sessions = star.Command{
	Metadata: star.Metadata{
		Short: "list the sessions in a system",
		Tags:  []string{"session"},
	},
	Flags: []star.IParam{DBParam},
	F: func(c star.Context) error {
		db := DBParam.Load(c)
		defer db.Close()
		sys := bacss.NewSystem(db, bacrt.DefaultConfig())
		ss, err := sys.List(c)
		if err != nil {
			return err
		}
		c.Printf("ID\tIMAGE\n")
		for _, sess := range ss {
			c.Printf("%v\t%v\n", sess.ID(), sess.Fingerprint())
		}
		return nil
	},
}

var drop = star.Command{
	Metadata: star.Metadata{
		Short: "remove a session and its history from the system",
		Tags:  []string{"session"},
	},
	Flags: []star.IParam{DBParam},
	Pos:   []star.IParam{SessionIDParam},
	F: func(c star.Context) error {
		db := DBParam.Load(c)
		defer db.Close()
		sys := bacss.NewSystem(db, bacrt.DefaultConfig())
		return sys.Drop(c, SessionIDParam.Load(c))
	},
}

var history = star.Command{
	Metadata: star.Metadata{
		Short: "list the finished runs of a session",
		Tags:  []string{"session"},
	},
	Flags: []star.IParam{DBParam, SessionIDParam},
	F: func(c star.Context) error {
		db := DBParam.Load(c)
		defer db.Close()
		sys := bacss.NewSystem(db, bacrt.DefaultConfig())
		runs, err := sys.History(c, SessionIDParam.Load(c))
		if err != nil {
			return err
		}
		c.Printf("ID\tSTEPS\tHALTED\tFAULT\n")
		for _, r := range runs {
			c.Printf("%d\t%d\t%v\t%s\n", r.ID, r.Steps, r.Halted, r.Fault)
		}
		return nil
	},
}

var SessionIDParam = star.Param[bacss.SessionID]{Name: "session", Parse: ParseSessionID}

func ParseSessionID(x string) (bacss.SessionID, error) {
	n, err := strconv.ParseInt(x, 10, 64)
	return bacss.SessionID(n), err
}
