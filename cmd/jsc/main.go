package main

import (
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"nikand.dev/go/cli"
	"nikand.dev/go/cli/flag"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/ext/tlflag"
	"tlog.app/go/tlog/tlio"

	"nikand.dev/go/jsc"
	"nikand.dev/go/jsc/esparse"
	"nikand.dev/go/jsc/wasm"
)

func main() {
	compile := &cli.Command{
		Name:   "compile",
		Args:   cli.Args{},
		Action: compileRun,
		Flags: []*cli.Flag{
			cli.NewFlag("out,o", "out.wasm", "output file"),
		},
	}

	dump := &cli.Command{
		Name:   "dump",
		Args:   cli.Args{},
		Action: dumpRun,
	}

	app := &cli.Command{
		Name:        "jsc",
		Description: "ahead-of-time js to wasm compiler",
		Before:      before,
		Flags: []*cli.Flag{
			cli.NewFlag("valtype", "f64", "module value type (i32, i64, f64)"),
			cli.NewFlag("page-size", 64, "page size in KiB"),
			cli.NewFlag("typeswitch-use-brtable", false, "emit br_table for type switches"),
			cli.NewFlag("aot-well-formed-string-approximation", false, "annotate string concat sites"),
			cli.NewFlag("ast-log", false, "dump ast"),

			cli.NewFlag("log", "stderr?dm", "log output file (or stderr)"),
			cli.NewFlag("verbosity,v", "", "logger verbosity topics"),
			cli.NewFlag("debug", "", "debug address", flag.Hidden),
			cli.FlagfileFlag,
			cli.HelpFlag,
		},
		Commands: []*cli.Command{
			compile,
			dump,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func before(c *cli.Command) error {
	w, err := tlflag.OpenWriter(c.String("log"))
	if err != nil {
		return errors.Wrap(err, "open log file")
	}

	err = tlio.WalkWriter(w, func(w io.Writer) error {
		c, ok := w.(*tlog.ConsoleWriter)
		if !ok {
			return nil
		}

		c.StringOnNewLineMinLen = 16

		return nil
	})
	if err != nil {
		return errors.Wrap(err, "walk writer")
	}

	tlog.DefaultLogger = tlog.New(w)

	tlog.SetVerbosity(c.String("verbosity"))

	if q := c.String("debug"); q != "" {
		l, err := net.Listen("tcp", q)
		if err != nil {
			return errors.Wrap(err, "listen debug")
		}

		tlog.Printw("start debug interface", "addr", l.Addr())

		go func() {
			err := http.Serve(l, nil)
			if err != nil {
				tlog.Printw("debug", "addr", q, "err", err, "", tlog.Fatal)
				panic(err)
			}
		}()
	}

	return nil
}

func compileFile(c *cli.Command, name string) (*jsc.Compilation, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	var prog *jsc.Node

	if strings.EqualFold(filepath.Ext(name), ".json") {
		prog, err = jsc.ParseJSON(data)
	} else {
		prog, err = esparse.Parse(string(data))
	}

	if err != nil {
		return nil, errors.Wrap(err, "parse")
	}

	comp, err := jsc.New(jsc.Options{
		Valtype:                c.String("valtype"),
		PageSize:               c.Int("page-size") * 1024,
		TypeswitchBrTable:      c.Bool("typeswitch-use-brtable"),
		WellFormedStringApprox: c.Bool("aot-well-formed-string-approximation"),
		ASTLog:                 c.Bool("ast-log"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "new compilation")
	}

	comp.RegisterParser(esparse.Parse)

	err = comp.Compile(prog)
	if err != nil {
		return nil, errors.Wrap(err, "compile")
	}

	return comp, nil
}

func compileRun(c *cli.Command) (err error) {
	var e wasm.Encoder

	for _, a := range c.Args {
		comp, err := compileFile(c, a)
		if err != nil {
			return errors.Wrap(err, "%v", a)
		}

		b := e.Module(nil, comp.Module())

		err = os.WriteFile(c.String("out"), b, 0o644)
		if err != nil {
			return errors.Wrap(err, "write output")
		}

		tlog.Printw("compiled", "input", a, "output", c.String("out"), "size", len(b))
	}

	return nil
}

func dumpRun(c *cli.Command) (err error) {
	for _, a := range c.Args {
		comp, err := compileFile(c, a)
		if err != nil {
			return errors.Wrap(err, "%v", a)
		}

		for _, f := range comp.Funcs {
			tlog.Printw("func", "index", f.Index, "name", f.Name,
				"params", wasm.ResultType(f.Params), "returns", wasm.ResultType(f.Returns),
				"export", f.Export, "throws", f.Throws)

			for i, ins := range f.Wasm {
				tlog.Printw("ins", "i", i, "op", ins.Op.String(), "arg", ins.Arg)
			}
		}

		for i, g := range comp.Globals.Types {
			tlog.Printw("global", "i", i, "tp", g)
		}

		for i, t := range comp.Tags {
			tlog.Printw("tag", "i", i, "params", wasm.ResultType(t.Params))
		}

		for i, x := range comp.Exceptions {
			tlog.Printw("exception", "i", i, "constructor", x.Constructor, "message", x.Message)
		}

		for _, reason := range comp.Pages.Reasons() {
			tlog.Printw("page", "reason", reason, "ptr", comp.Pages.Ptr(reason, ""))
		}

		for i, d := range comp.Data {
			tlog.Printw("data", "i", i, "offset", d.Offset, "bytes", wasm.Code(d.Bytes))
		}
	}

	return nil
}
