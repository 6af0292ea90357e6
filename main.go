// WMBUS - A wireless M-Bus telegram decoder for metering gateways.
// Copyright (C) 2015 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bemasher/wmbus/decoder"
	"github.com/bemasher/wmbus/feed"
	"github.com/bemasher/wmbus/protocol"
	"github.com/bemasher/wmbus/source"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	buildTag   = "dev"     // v#.#.#
	buildDate  = "unknown" // date -u '+%Y-%m-%d'
	commitHash = "unknown" // git rev-parse HEAD
)

var (
	filterAddress = make(AddressSet)
	filterType    = make(UintMap)
	unique        bool

	input     string
	timeLimit time.Duration
	single    bool
	listPorts bool
)

var rootCmd = &cobra.Command{
	Use:           "wmbus",
	Short:         "Decode wireless M-Bus telegrams",
	Long:          "wmbus decodes wireless M-Bus (EN 13757) telegrams from the command line, files or a receiver on a serial port.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var decodeCmd = &cobra.Command{
	Use:   "decode [hex...]",
	Short: "Decode telegrams given as arguments or as hex lines on stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, rcvr, err := setup(cmd, os.Stdout)
		if err != nil {
			return err
		}

		if len(args) == 0 {
			return receive(cmd.Context(), rcvr, scanner(cfg, os.Stdin, rcvr.log))
		}

		for _, arg := range args {
			data, err := decoder.ParseHex(arg)
			if err != nil {
				rcvr.log.Errorf("%s", err)
				rcvr.Failed++
				continue
			}

			t := decoder.Telegram{
				Data:            data,
				ChecksumRemoved: cfg.ChecksumRemoved,
				Decrypted:       cfg.Decrypted,
			}
			if _, err := rcvr.Handle(t); err != nil {
				return err
			}
		}

		if rcvr.Failed > 0 {
			return errors.Errorf("%d of %d telegrams failed to decode", rcvr.Failed, len(args))
		}
		return nil
	},
}

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Decode hex telegrams printed by a receiver on a serial port or written to a file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listPorts {
			return printPorts(cmd.OutOrStdout(), source.Ports)
		}

		cfg, rcvr, err := setup(cmd, os.Stdout)
		if err != nil {
			return err
		}
		rcvr.Single = single

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if timeLimit != 0 {
			var cancelLimit context.CancelFunc
			ctx, cancelLimit = context.WithTimeout(ctx, timeLimit)
			defer cancelLimit()
		}

		var r io.ReadCloser
		switch {
		case input == "-":
			r = os.Stdin
		case input != "":
			if r, err = os.Open(input); err != nil {
				return errors.Wrap(err, "open input")
			}
		default:
			if r, err = source.OpenSerial(cfg.Serial); err != nil {
				return err
			}
			rcvr.log.Infof("Receiving on %s at %d baud", cfg.Serial.Port, cfg.Serial.BaudRate)
		}

		// Closing the input unblocks a pending read.
		go func() {
			<-ctx.Done()
			r.Close()
		}()
		defer r.Close()

		if cfg.Feed.Listen != "" {
			hub := feed.NewHub(rcvr.log)
			rcvr.Feed(hub)
			go func() {
				if err := hub.ListenAndServe(ctx, cfg.Feed.Listen); err != nil {
					rcvr.log.Errorf("%s", err)
				}
			}()
		}

		start := time.Now()
		err = receive(ctx, rcvr, scanner(cfg, r, rcvr.log))
		switch err {
		case nil, context.Canceled:
		case context.DeadlineExceeded:
			rcvr.log.Infof("Time Limit Reached: %s", time.Since(start))
		default:
			return err
		}

		rcvr.log.Debugf("%d messages written, %d telegrams failed to decode", rcvr.Written, rcvr.Failed)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display build date and commit hash",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Build Tag: ", buildTag)
		fmt.Fprintln(out, "Build Date:", buildDate)
		fmt.Fprintln(out, "Commit:    ", commitHash)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", defaultConfigFile, "YAML config file")
	flags.String("loglevel", "info", "log level: debug, info, warn or error")
	flags.String("logfile", "", "also write logs to this file, rotated")
	flags.String("format", "plain", "decoded message output format: plain, csv, json, or xml")
	flags.StringToString("key", nil, "AES key for a device address, address=hex, repeatable")
	flags.String("keys-file", "", "YAML file mapping device addresses to AES keys")
	flags.Bool("disable-checksums", false, "skip block checksum verification")
	flags.Bool("checksum-removed", false, "telegrams carry no block checksums")
	flags.Bool("decrypted", false, "telegrams are already decrypted")
	flags.Var(filterAddress, "filter-address", "display only messages matching an address in a comma-separated list of addresses")
	flags.Var(filterType, "filter-type", "display only messages matching a device type in a comma-separated list of types")
	flags.BoolVar(&unique, "unique", false, "suppress duplicate messages from each meter")

	recv := receiveCmd.Flags()
	recv.String("port", "", "serial port of the receiver")
	recv.Int("baud", source.DefaultBaudRate, "serial baud rate")
	recv.StringVar(&input, "input", "", "read hex telegrams from a file instead of a serial port, - for stdin")
	recv.String("listen", "", "serve decoded messages to websocket clients at this address, path /ws")
	recv.DurationVar(&timeLimit, "duration", 0, "time to run for, 0 for infinite, ex. 1h5m10s")
	recv.BoolVar(&single, "single", false, "one shot execution, exit after the first message")
	recv.BoolVar(&listPorts, "list-ports", false, "list serial ports and exit")

	rootCmd.AddCommand(decodeCmd, receiveCmd, versionCmd)
}

// setup resolves the config and builds the receiver every decoding command
// writes its output through.
func setup(cmd *cobra.Command, w io.Writer) (Config, *Receiver, error) {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return cfg, nil, err
	}

	log, err := cfg.Log.Logger(os.Stderr)
	if err != nil {
		return cfg, nil, err
	}

	d, err := cfg.Decoder(log)
	if err != nil {
		return cfg, nil, err
	}

	enc, err := NewEncoder(cfg.Format, w)
	if err != nil {
		return cfg, nil, err
	}

	return cfg, NewReceiver(d, filters(cmd), enc, log), nil
}

func filters(cmd *cobra.Command) (fc protocol.FilterChain) {
	flags := cmd.Flags()
	if flags.Changed("filter-address") {
		fc.Add(AddressFilter{filterAddress})
	}
	if flags.Changed("filter-type") {
		fc.Add(DeviceTypeFilter{filterType})
	}
	if unique {
		fc.Add(NewUniqueFilter())
	}
	return fc
}

func printPorts(w io.Writer, list func() ([]string, error)) error {
	ports, err := list()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		_, err = fmt.Fprintln(w, "no serial ports found")
		return err
	}
	for _, port := range ports {
		if _, err := fmt.Fprintln(w, port); err != nil {
			return err
		}
	}
	return nil
}

func scanner(cfg Config, r io.Reader, log logrus.FieldLogger) *source.Scanner {
	sc := source.NewScanner(r, log)
	sc.ChecksumRemoved = cfg.ChecksumRemoved
	sc.Decrypted = cfg.Decrypted
	return sc
}

// receive runs the scanner and the receiver until the input ends.
func receive(parent context.Context, rcvr *Receiver, sc *source.Scanner) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	telegrams := make(chan decoder.Telegram)
	scanErr := make(chan error, 1)
	go func() {
		scanErr <- sc.Run(ctx, telegrams)
	}()

	if err := rcvr.Run(ctx, telegrams); err != nil {
		return err
	}

	if err := parent.Err(); err != nil {
		return err
	}
	if rcvr.Single && rcvr.Written > 0 {
		return nil
	}

	if err := <-scanErr; err != nil {
		return err
	}
	if sc.Skipped > 0 {
		rcvr.log.Warnf("skipped %d lines that were not hex telegrams", sc.Skipped)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
