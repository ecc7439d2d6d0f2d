package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gmfloripa/patrol-relay/internal/broadcast"
	"github.com/gmfloripa/patrol-relay/internal/config"
	"github.com/gmfloripa/patrol-relay/internal/domain"
)

type sendOptions struct {
	to       []string
	all      bool
	file     string
	message  string
	server   string
	showLogs bool
}

func sendCmd() *cobra.Command {
	opts := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Broadcast a message and/or file to patrol units",
		Long: `Relays the payload to each selected unit in order, one at a time.
Without --server the relay runs in-process with the UNA credentials from the
config; with --server each unit is sent through a running relay's
/api/send-file endpoint.`,
		Example: `  patrol-relay send --to 355067 --to 356052 --message "Ocorrência na Rua A"
  patrol-relay send --all --file foto.jpg --server http://localhost:8080`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSend(cmd, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.to, "to", "t", nil, "recipient id (repeatable)")
	cmd.Flags().BoolVar(&opts.all, "all", false, "send to every unit in the roster")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "file to attach")
	cmd.Flags().StringVarP(&opts.message, "message", "m", "", "message text, used as caption with --file")
	cmd.Flags().StringVar(&opts.server, "server", "", "base URL of a running relay (default: relay in-process)")
	cmd.Flags().BoolVar(&opts.showLogs, "logs", false, "print the full call log as JSON")

	return cmd
}

func runSend(cmd *cobra.Command, opts *sendOptions) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level)

	roster, err := cfg.Roster()
	if err != nil {
		return err
	}
	holder := domain.NewRosterHolder(roster)

	ids := opts.to
	if opts.all {
		for _, rc := range roster.All() {
			ids = append(ids, rc.ID)
		}
	}

	var file *domain.Attachment
	if opts.file != "" {
		file, err = readAttachment(opts.file)
		if err != nil {
			return err
		}
	}

	var relayer broadcast.Relayer
	endpoint := ""
	if opts.server != "" {
		hr := broadcast.NewHTTPRelayer(opts.server, broadcast.WithRequestID(uuid.NewString()))
		relayer, endpoint = hr, hr.Endpoint()
	} else {
		if err := cfg.Validate(); err != nil {
			return err
		}
		svc, closeTokens, err := newRelayService(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer closeTokens()
		relayer = broadcast.LocalRelayer{Service: svc}
	}

	out := cmd.OutOrStdout()
	controllerOpts := []broadcast.Option{
		broadcast.WithLogger(logger),
		broadcast.WithProgress(func(current, total int, rc domain.Recipient) {
			fmt.Fprintf(out, "Enviando para %s (%d/%d)...\n", rc.Name, current, total)
		}),
	}
	if endpoint != "" {
		controllerOpts = append(controllerOpts, broadcast.WithEndpoint(endpoint))
	}

	controller := broadcast.NewController(relayer, holder, controllerOpts...)
	outcome, err := controller.Broadcast(cmd.Context(), ids, file, opts.message)
	if err != nil {
		return err
	}

	printOutcome(out, outcome, opts.showLogs)
	if outcome.Status == domain.OutcomeAllFailed {
		return errors.New(outcome.Summary)
	}
	return nil
}

func printOutcome(w io.Writer, outcome *domain.BroadcastOutcome, showLogs bool) {
	for _, r := range outcome.Results {
		mark := "✓"
		detail := r.Result.Message
		if !r.Result.Success {
			mark, detail = "✗", r.Result.Error
		}
		fmt.Fprintf(w, "%s %s: %s\n", mark, r.Recipient.Name, detail)
	}
	fmt.Fprintln(w, outcome.Summary)
	fmt.Fprintf(w, "%s (%d ms)\n", outcome.Message, outcome.TotalDurationMs)

	if showLogs {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(outcome.Logs)
	}
}

// readAttachment loads path and sniffs its media type.
func readAttachment(path string) (*domain.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	return &domain.Attachment{
		Name:        filepath.Base(path),
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}, nil
}
