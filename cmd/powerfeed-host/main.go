package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	logger "github.com/d2r2/go-logger"
	"go.uber.org/multierr"

	"powerfeed/config"
	"powerfeed/host/feeder"
	"powerfeed/host/serial"
)

var lg = logger.NewPackageLogger("main", logger.InfoLevel)

var (
	port       = flag.String("port", "", "Serial device path (empty = offline planning only)")
	baud       = flag.Int("baud", serial.DefaultBaud, "Baud rate")
	configPath = flag.String("config", "", "Machine config JSON (default: built-in)")
	verbose    = flag.Bool("verbose", false, "Enable verbose output")
)

func main() {
	flag.Parse()
	defer logger.FinalizeLogger()

	if *verbose {
		logger.ChangePackageLogLevel("main", logger.DebugLevel)
		logger.ChangePackageLogLevel("feeder", logger.DebugLevel)
	}

	if err := run(os.Stdin, os.Stdout); err != nil {
		lg.Errorf("%v", err)
		os.Exit(1)
	}
}

// client is a connected controller.
type client interface {
	device
	Close() error
}

var dial = func(cfg *serial.Config) (client, error) {
	c, err := feeder.Dial(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func run(in io.Reader, out io.Writer) (err error) {
	cfg := config.Default()
	if *configPath != "" {
		if cfg, err = config.LoadFile(*configPath); err != nil {
			return err
		}
		lg.Debugf("loaded config from %s", *configPath)
	}

	sh := &shell{out: out, cfg: cfg}

	if *port != "" {
		lg.Infof("connecting to %s at %d baud", *port, *baud)
		sc := serial.DefaultConfig(*port)
		sc.Baud = *baud
		var c client
		c, err = dial(sc)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, c.Close()) }()
		if d := c.Dictionary(); d != nil {
			lg.Infof("connected, %d messages in dictionary", d.Len())
		}
		sh.dev = c
	} else {
		lg.Infof("no port given, offline planning only")
	}

	fmt.Fprintln(out, "Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		if err := sh.run(scanner.Text()); err != nil {
			if err == errQuit {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	return scanner.Err()
}
