package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kraitsura/refnet/pkg/config"
	"github.com/kraitsura/refnet/pkg/journal"
	"github.com/kraitsura/refnet/pkg/model"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit   int
		session int64
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled viewer sessions, or the builds of one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.v.GetString(config.KeyJournal)
			if path == "" {
				path = journal.DefaultPath()
			}
			db, err := journal.OpenDB(path)
			if err != nil {
				return err
			}
			defer db.Close()

			if session > 0 {
				builds, err := db.BuildsForSession(session)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), buildsTable(builds))
				return nil
			}
			sessions, err := db.RecentSessions(limit)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no sessions journaled in %s\n", path)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), sessionsTable(sessions))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "sessions to list")
	cmd.Flags().Int64Var(&session, "session", 0, "list the builds of this session")
	return cmd
}

func sessionsTable(sessions []model.ViewerSession) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "ADDRESS", "ROOT", "BUILDS", "MAX USERS", "FAILED", "STARTED", "OPEN")
	for _, s := range sessions {
		open := "no"
		if s.CompletedAt == nil {
			open = "yes"
		}
		t.Row(
			strconv.FormatInt(s.ID, 10),
			s.Address,
			s.RootID.String(),
			strconv.Itoa(s.Builds),
			humanize.Comma(int64(s.MaxVisited)),
			strconv.Itoa(s.TotalFailed),
			humanize.Time(s.StartedAt),
			open,
		)
	}
	return t.String()
}

func buildsTable(builds []model.BuildRecord) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TRIGGER", "USERS", "FAILED", "DEPTH", "TRUNCATED", "CALLS", "TOOK")
	for _, b := range builds {
		t.Row(
			strconv.FormatInt(b.ID, 10),
			b.Trigger,
			humanize.Comma(int64(b.Visited)),
			strconv.Itoa(b.Failed),
			strconv.Itoa(b.Depth),
			strconv.FormatBool(b.Truncated),
			strconv.FormatInt(b.RemoteCalls, 10),
			b.Duration.String(),
		)
	}
	return t.String()
}
