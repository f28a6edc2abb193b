package cmd

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	dispatch "github.com/markuskont/go-dispatch"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	detect "github.com/siembox/go-detection-engine"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Match a normalized event stream against the rule corpus",
	Long: `Run reads newline delimited JSON events from stdin or a file, thus any
stream can be piped into the command. For example:

	zcat ~/logs/ocsf.json.gz | detection-engine run --rules-dir ./rules

Alerts are written to stdout as JSON lines.`,
	Run: run,
}

func copyBytes(in []byte) []byte {
	tx := make([]byte, len(in))
	copy(tx, in)
	return tx
}

func scanLines(input io.Reader, ctx context.Context) <-chan []byte {
	tx := make(chan []byte, 1)
	go func(ctx context.Context) {
		defer close(tx)
		scanner := bufio.NewScanner(input)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	loop:
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				break loop
			case tx <- copyBytes(scanner.Bytes()):
			}
		}
		if err := scanner.Err(); err != nil {
			logrus.Fatal(err)
		}
	}(ctx)
	return tx
}

func open(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, "gz") {
		return gzip.NewReader(file)
	}
	return file, nil
}

// decodeEvent maps one raw JSON log line to a normalized event. The
// message pseudo-field comes from the well-known top level message key
// when present.
func decodeEvent(line []byte) (*detect.Event, error) {
	var fields detect.DynamicMap
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, err
	}
	ev := &detect.Event{Fields: fields}
	if msg, ok := fields["message"].(string); ok {
		ev.Message = msg
	}
	return ev, nil
}

// goroutine
func logStats(engine *detect.Engine, ctx context.Context) {
	tick := time.NewTicker(viper.GetDuration("sigma.stats.interval"))
	defer tick.Stop()
	start := time.Now()
	for {
		select {
		case <-tick.C:
			s := engine.Stats()
			logrus.WithFields(logrus.Fields{
				"processed": s.Processed,
				"matched":   s.Matched,
				"eps":       fmt.Sprintf("%.2f", float64(s.Processed)/time.Since(start).Seconds()),
			}).Info("engine stats")
		case <-ctx.Done():
			return
		}
	}
}

func run(cmd *cobra.Command, args []string) {
	var input io.ReadCloser
	var err error
	if infile := viper.GetString("sigma.input"); infile != "" {
		input, err = open(infile)
		if err != nil {
			logrus.Fatal(err)
		}
		defer input.Close()
	} else {
		input = os.Stdin
	}

	store, err := detect.NewStore(detect.StoreConfig{
		Directory: viper.GetStringSlice("rules.dir"),
		Logger:    logrus.StandardLogger(),
	})
	if err != nil {
		logrus.Fatal(err)
	}
	result, err := store.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.Infof("rule corpus: %s", result)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if viper.GetBool("sigma.rules.watch") {
		if err := store.Watch(ctx); err != nil {
			logrus.Fatal(err)
		}
	}

	engine, err := detect.NewEngine(detect.EngineConfig{
		Store: store,
		Extractors: []detect.Extractor{
			detect.IPSExtractor{},
			detect.CEFExtractor{},
		},
		Logger: logrus.StandardLogger(),
	})
	if err != nil {
		logrus.Fatal(err)
	}

	go logStats(engine, ctx)

	lines := scanLines(input, ctx)
	var mu sync.Mutex
	enc := json.NewEncoder(os.Stdout)

	workers := viper.GetInt("sigma.workers")
	if err := dispatch.Run(dispatch.Config{
		Async:   false,
		Workers: workers,
		FeederFunc: func(tasks chan<- dispatch.Task, stop <-chan struct{}) {
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				tasks <- func(id, count int, ctx context.Context) error {
					defer wg.Done()
					for line := range lines {
						ev, err := decodeEvent(line)
						if err != nil {
							logrus.WithError(err).Warn("event decode failed, skipping")
							continue
						}
						results := engine.EvalEvent(ev)
						if len(results) == 0 {
							continue
						}
						mu.Lock()
						for _, res := range results {
							if err := enc.Encode(res); err != nil {
								logrus.Error(err)
							}
						}
						mu.Unlock()
					}
					return nil
				}
			}
			wg.Wait()
		},
		ErrFunc: func(err error) bool {
			return true
		},
	}); err != nil {
		logrus.Fatal(err)
	}

	s := engine.Stats()
	logrus.WithFields(logrus.Fields{
		"processed": s.Processed,
		"matched":   s.Matched,
	}).Info("stream done")
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.PersistentFlags().Int("sigma-workers", 4,
		`Number of workers for event matching.`)
	viper.BindPFlag("sigma.workers",
		runCmd.PersistentFlags().Lookup("sigma-workers"))

	runCmd.PersistentFlags().String("sigma-input", "",
		`Input log file.`)
	viper.BindPFlag("sigma.input",
		runCmd.PersistentFlags().Lookup("sigma-input"))

	runCmd.PersistentFlags().Bool("sigma-rules-watch", false,
		`Reload the rule corpus when rule files change on disk.`)
	viper.BindPFlag("sigma.rules.watch",
		runCmd.PersistentFlags().Lookup("sigma-rules-watch"))

	runCmd.PersistentFlags().Duration("sigma-stats-interval", 10*time.Second,
		`Interval between stats logging.`)
	viper.BindPFlag("sigma.stats.interval",
		runCmd.PersistentFlags().Lookup("sigma-stats-interval"))
}
