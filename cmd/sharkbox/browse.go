package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/sharkbox/internal/api"
	"github.com/abelbrown/sharkbox/internal/feed"
	"github.com/abelbrown/sharkbox/internal/format"
	"github.com/abelbrown/sharkbox/internal/model"
)

type listFlags struct {
	all  bool
	size int
}

func (lf *listFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&lf.all, "all", "a", false, "fetch every page")
	cmd.Flags().IntVar(&lf.size, "page-size", 0, "rows per request (default from config)")
}

func (lf listFlags) pageSize(d *deps) int {
	if lf.size > 0 {
		return lf.size
	}
	return d.cfg.PageSize
}

func newFeed[T feed.Item](target string, sort []string, fetch feed.FetchFunc[T], size int) *feed.Feed[T] {
	return feed.New(feed.Options[T]{
		Query:    feed.Query{Target: target, Sort: sort},
		Fetch:    fetch,
		PageSize: size,
		Enabled:  true,
	})
}

func newBoxesCmd() *cobra.Command {
	var lf listFlags
	cmd := &cobra.Command{
		Use:   "boxes",
		Short: "List boxes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := setup()
			if err != nil {
				return err
			}
			defer d.close()
			f := newFeed(api.BoxesTarget(), api.BoxSort, api.BoxesFeed(d.client), lf.pageSize(d))
			defer f.Close()
			boxes, err := drain(cmd.Context(), f, lf.all)
			out := cmd.OutOrStdout()
			printBoxes(out, boxes, newPalette(styled(out)))
			printMore(out, f.HasMore() && !lf.all, len(boxes))
			return err
		},
	}
	lf.bind(cmd)
	return cmd
}

func newThreadsCmd() *cobra.Command {
	var lf listFlags
	cmd := &cobra.Command{
		Use:   "threads <box>",
		Short: "List a box's threads, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := setup()
			if err != nil {
				return err
			}
			defer d.close()
			slug := args[0]
			f := newFeed(api.ThreadsTarget(slug), api.ThreadSort, api.ThreadsFeed(d.client, slug), lf.pageSize(d))
			defer f.Close()
			threads, err := drain(cmd.Context(), f, lf.all)
			out := cmd.OutOrStdout()
			printThreads(out, threads, time.Now(), newPalette(styled(out)))
			printMore(out, f.HasMore() && !lf.all, len(threads))
			return err
		},
	}
	lf.bind(cmd)
	return cmd
}

func newThreadCmd() *cobra.Command {
	var (
		lf      listFlags
		comment string
	)
	cmd := &cobra.Command{
		Use:   "thread <id>",
		Short: "Show a thread and its comments",
		Long: `thread prints a thread followed by its comment tree. --comment accepts a
comment id or a "comment-<id>" anchor and keeps fetching pages until that
comment is loaded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid thread id %q", args[0])
			}
			var target int64
			if comment != "" {
				var ok bool
				if target, ok = model.ParseAnchor(comment); !ok {
					return fmt.Errorf("invalid comment anchor %q", comment)
				}
			}

			d, err := setup()
			if err != nil {
				return err
			}
			defer d.close()

			f := newFeed(api.CommentsTarget(id), api.CommentSort, api.CommentsFeed(d.client, id), lf.pageSize(d))
			defer f.Close()
			th, found, err := loadThread(cmd.Context(), d.client, f, id, target, lf.all)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			p := newPalette(styled(out))
			printThread(out, th, time.Now(), p)
			rows := model.Flatten(model.BuildTree(f.Items()), nil)
			printComments(out, rows, target, time.Now(), p)
			printMore(out, f.HasMore() && !lf.all, len(rows))
			if target != 0 && !found {
				return fmt.Errorf("comment %d not found in thread %d", target, id)
			}
			return nil
		},
	}
	lf.bind(cmd)
	cmd.Flags().StringVar(&comment, "comment", "", "fetch until this comment is loaded")
	return cmd
}

// loadThread fetches the thread and the first comment page concurrently, then
// catches up to target when one is given.
func loadThread(ctx context.Context, c *api.Client, f *feed.Feed[model.Comment], id, target int64, all bool) (model.Thread, bool, error) {
	var th model.Thread
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		th, err = c.Thread(gctx, id)
		return err
	})
	g.Go(func() error {
		_, err := drain(gctx, f, all)
		return err
	})
	if err := g.Wait(); err != nil {
		return th, false, err
	}
	if target == 0 {
		return th, false, nil
	}
	found, err := feed.CatchUp(ctx, f, strconv.FormatInt(target, 10), 0)
	return th, found, err
}

func newUserCmd() *cobra.Command {
	var (
		lf       listFlags
		comments bool
	)
	cmd := &cobra.Command{
		Use:   "user <name>",
		Short: "List a user's threads or comments, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := setup()
			if err != nil {
				return err
			}
			defer d.close()
			name := args[0]
			out := cmd.OutOrStdout()
			p := newPalette(styled(out))

			if comments {
				f := newFeed(api.UserCommentsTarget(name), api.UserCommentSort, api.UserCommentsFeed(d.client, name), lf.pageSize(d))
				defer f.Close()
				items, err := drain(cmd.Context(), f, lf.all)
				printUserComments(out, items, time.Now(), p)
				printMore(out, f.HasMore() && !lf.all, len(items))
				return err
			}
			f := newFeed(api.UserThreadsTarget(name), api.UserThreadSort, api.UserThreadsFeed(d.client, name), lf.pageSize(d))
			defer f.Close()
			items, err := drain(cmd.Context(), f, lf.all)
			printThreads(out, items, time.Now(), p)
			printMore(out, f.HasMore() && !lf.all, len(items))
			return err
		},
	}
	lf.bind(cmd)
	cmd.Flags().BoolVar(&comments, "comments", false, "list comments instead of threads")
	return cmd
}

func printBoxes(w io.Writer, boxes []model.Box, p palette) {
	if len(boxes) == 0 {
		fmt.Fprintln(w, "No boxes.")
		return
	}
	for _, b := range boxes {
		fmt.Fprintf(w, "%-20s %s", p.Title(b.Slug), b.Name)
		if b.Description != "" {
			fmt.Fprintf(w, "  %s", p.Meta(truncate(b.Description, 60)))
		}
		fmt.Fprintln(w)
	}
}

func printThreads(w io.Writer, threads []model.Thread, now time.Time, p palette) {
	if len(threads) == 0 {
		fmt.Fprintln(w, "No threads.")
		return
	}
	for _, t := range threads {
		meta := fmt.Sprintf("#%d  %s  %s  %s",
			t.ID, t.Username, format.RelativeTo(t.CreatedAt, now),
			english.Plural(t.CommentCount, "comment", ""))
		if slug := t.BoxSlug(); slug != "" {
			meta = slug + "  " + meta
		}
		fmt.Fprintf(w, "%5s  %s\n       %s\n", p.Score(format.Score(t.Score())), p.Title(truncate(t.Title, 80)), p.Meta(meta))
	}
}

func printThread(w io.Writer, t model.Thread, now time.Time, p palette) {
	fmt.Fprintln(w, p.Title(t.Title))
	fmt.Fprintln(w, p.Meta(fmt.Sprintf("#%d  %s  %s  score %s  %s",
		t.ID, t.Username, format.RelativeTo(t.CreatedAt, now), format.Score(t.Score()),
		english.Plural(t.CommentCount, "comment", ""))))
	if body := strings.TrimSpace(t.Content); body != "" {
		fmt.Fprintf(w, "\n%s\n", body)
	} else if desc := strings.TrimSpace(t.Description); desc != "" {
		fmt.Fprintf(w, "\n%s\n", desc)
	}
	fmt.Fprintln(w)
}

func printComments(w io.Writer, rows []model.Row, target int64, now time.Time, p palette) {
	for _, r := range rows {
		c := r.Comment
		indent := strings.Repeat("  ", min(r.Depth, 8))
		mark := ""
		if c.ID == target {
			mark = " <"
		}
		head := fmt.Sprintf("%s  %s  %s", c.Username, format.RelativeTo(c.CreatedAt, now), format.Score(c.Score()))
		if c.Edited() {
			head += "  (edited)"
		}
		fmt.Fprintf(w, "%s%s%s\n", indent, p.Meta(head), mark)
		for _, line := range strings.Split(strings.TrimSpace(c.Content), "\n") {
			fmt.Fprintf(w, "%s  %s\n", indent, line)
		}
	}
}

func printUserComments(w io.Writer, comments []model.Comment, now time.Time, p palette) {
	if len(comments) == 0 {
		fmt.Fprintln(w, "No comments.")
		return
	}
	for _, c := range comments {
		where := fmt.Sprintf("thread #%d", c.ThreadID)
		if c.ThreadTitle != "" {
			where = truncate(c.ThreadTitle, 50)
		}
		fmt.Fprintf(w, "%5s  %s\n       %s\n",
			p.Score(format.Score(c.Score())), truncate(c.Content, 80),
			p.Meta(fmt.Sprintf("on %s  %s  #%s", where, format.RelativeTo(c.CreatedAt, now), model.AnchorID(c.ID))))
	}
}

func printMore(w io.Writer, more bool, n int) {
	if more {
		fmt.Fprintf(w, "\n%d shown, more available (use --all)\n", n)
	}
}
