// Package main implements watchctl, a small operator tool for the redis
// watcher: it can tail the notification channel and inject synthetic
// updates, which is handy when debugging why instances stopped converging.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kart-io/logger"
	rediswatcher "github.com/kart-io/redis-watcher"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	redisAddr   string
	clusterNode string
	watcherOpts = rediswatcher.NewWatcherOptions()
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "watchctl",
		Short: "Inspect and exercise a casbin redis watcher channel",
		Long: `watchctl connects to the same Redis pub/sub channel that the
watcher library uses and either prints every notification as it arrives
(listen) or publishes a synthetic one (send).

Configuration can come from flags, a YAML config file (--config) or
environment variables with the WATCHCTL_ prefix.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindConfig(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "Path to a YAML config file")
	pf.StringVar(&redisAddr, "addr", "127.0.0.1:6379", "Standalone Redis address")
	pf.StringVar(&clusterNode, "cluster-node", "", "Fixed cluster node address; overrides --addr when set")
	watcherOpts.AddFlags(pf, "")

	root.AddCommand(newListenCmd(), newSendCmd())
	return root
}

// bindConfig overlays config-file and environment values onto every flag
// the command line left untouched.
func bindConfig(cmd *cobra.Command) error {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	v.SetEnvPrefix("WATCHCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := cmd.Flags().Set(f.Name, v.GetString(f.Name)); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	return bindErr
}

func newWatcher() (*rediswatcher.RedisWatcher, error) {
	if clusterNode != "" {
		return rediswatcher.NewWatcherWithCluster(clusterNode, watcherOpts)
	}
	return rediswatcher.NewWatcher(redisAddr, watcherOpts)
}

func newListenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Print every notification arriving on the channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := newWatcher()
			if err != nil {
				return err
			}
			defer w.Close()

			if err := w.SetUpdateCallback(func(payload string) {
				msg, err := rediswatcher.FromJSON(payload)
				if err != nil {
					logger.Warnw("undecodable payload", "payload", payload, "error", err.Error())
					return
				}
				fmt.Printf("%s %s\n", time.Now().Format(time.RFC3339), msg)
			}); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := w.WaitForReady(ctx); err != nil {
				return err
			}
			fmt.Printf("listening on %s (local id %s), ctrl-c to stop\n",
				watcherOpts.Channel, watcherOpts.LocalID)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop
			return nil
		},
	}
}

func newSendCmd() *cobra.Command {
	var (
		method      string
		sec         string
		ptype       string
		rule        []string
		oldRule     []string
		fieldIndex  int
		fieldValues []string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Publish a synthetic update notification",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := newWatcher()
			if err != nil {
				return err
			}
			defer w.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := w.WaitForReady(ctx); err != nil {
				return err
			}

			switch rediswatcher.UpdateType(method) {
			case rediswatcher.Update:
				err = w.Update()
			case rediswatcher.UpdateForAddPolicy:
				err = w.UpdateForAddPolicy(sec, ptype, rule...)
			case rediswatcher.UpdateForRemovePolicy:
				err = w.UpdateForRemovePolicy(sec, ptype, rule...)
			case rediswatcher.UpdateForRemoveFilteredPolicy:
				err = w.UpdateForRemoveFilteredPolicy(sec, ptype, fieldIndex, fieldValues...)
			case rediswatcher.UpdateForSavePolicy:
				err = w.UpdateForSavePolicy(nil)
			case rediswatcher.UpdateForUpdatePolicy:
				err = w.UpdateForUpdatePolicy(sec, ptype, oldRule, rule)
			default:
				return fmt.Errorf("unsupported method %q", method)
			}
			if err != nil {
				return err
			}

			// Close aborts without draining the queue, so give the publish
			// worker a moment to get the message out.
			time.Sleep(500 * time.Millisecond)
			fmt.Printf("published %s on %s\n", method, watcherOpts.Channel)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&method, "method", string(rediswatcher.Update), "Update type to publish")
	fs.StringVar(&sec, "sec", "p", "Policy section")
	fs.StringVar(&ptype, "ptype", "p", "Policy type")
	fs.StringSliceVar(&rule, "rule", nil, "Rule values (new rule)")
	fs.StringSliceVar(&oldRule, "old-rule", nil, "Old rule values (for update-policy)")
	fs.IntVar(&fieldIndex, "field-index", 0, "Field index (for remove-filtered-policy)")
	fs.StringSliceVar(&fieldValues, "field-values", nil, "Field values (for remove-filtered-policy)")
	return cmd
}
