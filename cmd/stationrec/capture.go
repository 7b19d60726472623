package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/user/stationrec/internal/archive"
	"github.com/user/stationrec/internal/capture"
	"github.com/user/stationrec/internal/compress"
	"github.com/user/stationrec/internal/logging"
	"github.com/user/stationrec/internal/metrics"
	"github.com/user/stationrec/internal/ring"
	"github.com/user/stationrec/internal/session"
)

// runCapture wires together the ring buffer, session controller,
// producer, and consumer for one recording run: the glue component of
// spec.md §2's five-component system.
func runCapture(cmd *cobra.Command, args []string) error {
	opts, err := parseOptions(viper.GetViper())
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	log := logging.New(opts.logLevel)
	if opts.verbose {
		log = logging.New("debug")
	}

	r, err := ring.Create(int(opts.bufSize))
	if err != nil {
		return fmt.Errorf("setup: ring: %w", err)
	}
	defer r.Destroy()

	sess := session.New(r, log)

	anchor := session.WaitForStart(opts.start)
	var deadline time.Time
	switch {
	case !opts.end.IsZero():
		deadline = opts.end
	case opts.duration > 0:
		deadline = anchor.Add(opts.duration)
	}
	sess.StartedAt = anchor
	sess.EndsAt = deadline
	if timer := sess.ArmDeadline(deadline); timer != nil {
		defer timer.Stop()
	}

	sigCh := session.NotifyChannel()
	defer session.StopNotify(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Supervise(ctx, sigCh)

	var archiver *archive.Uploader
	if opts.archiveBucket != "" {
		archiver, err = archive.New(ctx, opts.archiveRegion, opts.archiveBucket, opts.archivePrefix, opts.archiveEndpoint, "", "")
		if err != nil {
			return fmt.Errorf("setup: archive: %w", err)
		}
	}

	if opts.metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, opts.metricsAddr); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	reporter := newStatsReporter(log)

	producerCfg := capture.Config{
		PackLen:         opts.packLen,
		SizeHead:        opts.sizeHead,
		BeamformedCheck: opts.check,
		Timeout:         opts.timeout,
	}

	var producer *capture.Producer
	if opts.stdinMode {
		producer = capture.NewStdinProducer(os.Stdin, producerCfg, r, sess, log)
	} else {
		producer, err = capture.NewSocketProducer(opts.ports, producerCfg, r, sess, log)
		if err != nil {
			return fmt.Errorf("setup: %w", err)
		}
	}
	producer.OnProgress = func() {
		reporter.report("progress", producer.Ports(), r, sess)
	}

	codec := compress.None
	externalCompCommand := ""
	if opts.compress {
		if algo, ok := compress.ParseInternal(opts.compCommand); ok {
			codec = algo
		} else {
			externalCompCommand = opts.compCommand
		}
	}

	consumerCfg := capture.ConsumerConfig{
		Base:                 opts.out,
		PortList:             opts.portList(),
		Hostname:             hostname(),
		PackLen:              opts.packLen,
		MaxFileSize:          opts.maxFileSize,
		MaxWrite:             opts.maxWrite,
		Codec:                codec,
		ExternalCompCommand:  externalCompCommand,
		ExternalPathOverride: opts.pathOverride,
		Archiver:             archiver,
	}
	consumer := capture.New(consumerCfg, r, sess, log)
	consumer.OnFileReport = func(rep capture.FileReport) {
		metrics.FilesOpened.Inc()
		reporter.report("file-close:"+rep.Path, producer.Ports(), r, sess)
	}

	producerErrCh := make(chan error, 1)
	go func() { producerErrCh <- producer.Run(ctx) }()

	consumerErr := consumer.Run(ctx)

	// Concurrency model: main joins the consumer, then gives the
	// producer a 1-second grace period before force-canceling; the
	// producer itself closes its sockets on observing stopped==2.
	select {
	case perr := <-producerErrCh:
		if perr != nil && consumerErr == nil {
			consumerErr = perr
		}
	case <-time.After(time.Second):
		cancel()
		<-producerErrCh
	}

	reporter.report("final", producer.Ports(), r, sess)

	if consumerErr != nil {
		return fmt.Errorf("runtime: %w", consumerErr)
	}
	return nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
