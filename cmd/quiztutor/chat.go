package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	appI18n "github.com/pavelanni/quiztutor/internal/i18n"
	"github.com/pavelanni/quiztutor/internal/model"
	"github.com/pavelanni/quiztutor/internal/session"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Take a quiz interactively in the terminal",
		RunE:  runChat,
	}
	f := cmd.Flags()
	f.String("student", "", "Student ID (required)")
	f.String("subject", "", "Subject (required)")
	f.String("week", "", "Week (required)")
	f.Bool("llm-ping", false, "Check the OpenAI-compatible endpoint on startup")
	addTutorFlags(f)
	addStoreFlags(f)
	addLLMFlags(f)
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("student")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("week")

	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	if !cmd.Flags().Changed("log-level") && v.GetString("log-file") == "" {
		// Keep the conversation readable.
		v.Set("log-level", "warn")
	}
	setupLogging(v)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	ctx := cmd.Context()
	d, err := buildDeps(ctx, v, true)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := importQuizzes(ctx, d.db, v.GetStringSlice("quizzes")); err != nil {
		return err
	}

	key := model.SessionKey{
		StudentID: v.GetString("student"),
		Subject:   v.GetString("subject"),
		Week:      v.GetString("week"),
	}
	return chatLoop(appI18n.WithLang(ctx, lang), d.machine, key, cmd.InOrStdin(), cmd.OutOrStdout())
}

// chatLoop resumes the session, showing the current question, then feeds one line per
// turn until the machine ends the session or input runs out.
func chatLoop(ctx context.Context, m *session.Machine, key model.SessionKey, in io.Reader, out io.Writer) error {
	reply, err := m.Resume(ctx, key)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n\n", reply.Text)

	scanner := bufio.NewScanner(in)
	for reply.Signal != session.SignalEndSession {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply, err = m.HandleInput(ctx, key, line)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s\n\n", reply.Text)
	}
	return nil
}
