// Command mdnsd runs the mDNS responder/resolver as a standalone process,
// or drives a one-shot query/browse against whatever is already running
// on the network.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinynet-io/mdnsd"
	"github.com/tinynet-io/mdnsd/internal/logx"
)

var (
	debug    bool
	hostname string
)

func main() {
	root := &cobra.Command{
		Use:   "mdnsd",
		Short: "mDNS (RFC 6762/6763) responder and resolver",
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&hostname, "hostname", "mdnsd", "owned hostname (without .local)")

	root.AddCommand(serveCmd(), queryCmd(), browseCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServer() (*mdnsd.Server, error) {
	if debug {
		logx.SetDebug()
	}
	return mdnsd.New(hostname)
}

func serveCmd() *cobra.Command {
	var typ, proto string
	var port uint16
	var instance string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the responder, optionally announcing one service",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newServer()
			if err != nil {
				return err
			}
			if err := s.Start(); err != nil {
				return err
			}
			defer s.Stop()

			if typ != "" {
				if instance == "" {
					instance = hostname
				}
				if err := s.ServiceAdd(mdnsd.Service{
					Instance: instance,
					Type:     typ,
					Proto:    proto,
					Port:     port,
				}); err != nil {
					return err
				}
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			fmt.Fprintln(cmd.OutOrStdout(), "mdnsd running, press Ctrl+C to exit")
			<-sig
			return nil
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "service type to announce, e.g. _http")
	cmd.Flags().StringVar(&proto, "proto", "_tcp", "service proto, _tcp or _udp")
	cmd.Flags().Uint16Var(&port, "port", 0, "service port")
	cmd.Flags().StringVar(&instance, "instance", "", "service instance name (defaults to hostname)")
	return cmd
}

func queryCmd() *cobra.Command {
	var timeout time.Duration
	var instance string

	cmd := &cobra.Command{
		Use:   "query <type> <proto>",
		Short: "run a one-shot query and print accumulated results",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newServer()
			if err != nil {
				return err
			}
			if err := s.Start(); err != nil {
				return err
			}
			defer s.Stop()

			results, err := s.Query(instance, args[0], args[1], mdnsd.RecordPTR, mdnsd.WithQueryTimeout(timeout))
			if err != nil {
				return err
			}
			for _, r := range results {
				printResult(cmd, r, false)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "how long to wait for answers")
	cmd.Flags().StringVar(&instance, "instance", "", "restrict to one instance name")
	return cmd
}

func browseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse <type> <proto>",
		Short: "subscribe to a service and print updates until interrupted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newServer()
			if err != nil {
				return err
			}
			if err := s.Start(); err != nil {
				return err
			}
			defer s.Stop()

			h, err := s.BrowseNew(args[0], args[1], func(u mdnsd.Update) {
				printResult(cmd, u.Result, u.Removed)
			})
			if err != nil {
				return err
			}
			defer h.Delete()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			return nil
		},
	}
	return cmd
}

func printResult(cmd *cobra.Command, r mdnsd.Result, removed bool) {
	status := "+"
	if removed {
		status = "-"
	}
	txt := make([]string, 0, len(r.TXT))
	for _, it := range r.TXT {
		if it.HasValue {
			txt = append(txt, fmt.Sprintf("%s=%s", it.Key, it.Value))
		} else {
			txt = append(txt, it.Key)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\t%s:%d\t%v\t%s\n", status, r.Instance, r.Hostname, r.Port, r.Addrs, strings.Join(txt, ","))
}
