package baccmd

import (
	"fmt"
	"strconv"

	"go.brendoncarroll.net/star"

	"nsbaci.org/nsbaci/bacimg"
	"nsbaci.org/nsbaci/bacrt"
	"nsbaci.org/nsbaci/pcode"
)

var run = star.Command{
	Metadata: star.Metadata{
		Short: "run a program, using stdin and stdout as the console",
	},
	Flags: []star.IParam{fileParam, seedParam, maxStepsParam, configParam, traceParam, debugParam},
	F: func(c star.Context) error {
		ctx, err := logContext(c)
		if err != nil {
			return err
		}
		cfg, err := buildConfig(configParam.Load(c), seedParam.Load(c), maxStepsParam.Load(c))
		if err != nil {
			return err
		}
		img, err := bacimg.LoadFile(fileParam.Load(c))
		if err != nil {
			return err
		}
		rt := bacrt.New(cfg)
		rt.Load(ctx, img.Program())
		res, err := bacrt.NewConsole(rt, c.StdIn, c.StdOut).Run(ctx, cfg.MaxSteps)
		if traceParam.Load(c) {
			c.Printf("\n-- trace --\n")
			for _, te := range rt.Trace() {
				c.Printf("thread=%d pc=%d %v\n", te.Thread, te.PC, te.Op)
			}
		}
		if err != nil {
			return err
		}
		if !res.Halted {
			return fmt.Errorf("stopped after %d steps without halting", res.Steps)
		}
		return nil
	},
}

var asm = star.Command{
	Metadata: star.Metadata{
		Short: "convert a listing to an image, or an image to a listing",
	},
	Flags: []star.IParam{fileParam, outParam},
	F: func(c star.Context) error {
		img, err := bacimg.LoadFile(fileParam.Load(c))
		if err != nil {
			return err
		}
		if err := bacimg.WriteFile(outParam.Load(c), img); err != nil {
			return err
		}
		c.Printf("%v\n", img.Fingerprint())
		return nil
	},
}

var dis = star.Command{
	Metadata: star.Metadata{
		Short: "print the listing of a program",
	},
	Flags: []star.IParam{fileParam},
	F: func(c star.Context) error {
		img, err := bacimg.LoadFile(fileParam.Load(c))
		if err != nil {
			return err
		}
		return pcode.Format(c.StdOut, img.Listing())
	},
}

// buildConfig loads the config file at p, if p is not empty, and applies the
// seed and step limit when they are set.
func buildConfig(p string, seed uint64, maxSteps int) (bacrt.Config, error) {
	cfg := bacrt.DefaultConfig()
	if p != "" {
		var err error
		if cfg, err = bacrt.LoadConfig(p); err != nil {
			return bacrt.Config{}, err
		}
	}
	if seed != 0 {
		cfg.Seed = seed
	}
	if maxSteps > 0 {
		cfg.MaxSteps = maxSteps
	}
	if err := cfg.Validate(); err != nil {
		return bacrt.Config{}, err
	}
	return cfg, nil
}

var fileParam = star.Param[string]{
	Name:  "f",
	Parse: star.ParseString,
}

var outParam = star.Param[string]{
	Name:  "o",
	Parse: star.ParseString,
}

var configParam = star.Param[string]{
	Name:    "config",
	Default: star.Ptr(""),
	Parse:   star.ParseString,
}

var seedParam = star.Param[uint64]{
	Name:    "seed",
	Default: star.Ptr("0"),
	Parse: func(x string) (uint64, error) {
		return strconv.ParseUint(x, 10, 64)
	},
}

var maxStepsParam = star.Param[int]{
	Name:    "max-steps",
	Default: star.Ptr("0"),
	Parse:   strconv.Atoi,
}

var traceParam = star.Param[bool]{
	Name:    "trace",
	Default: star.Ptr("false"),
	Parse:   strconv.ParseBool,
}
