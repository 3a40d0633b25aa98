package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"readalong/internal/apperr"
	"readalong/internal/credentials"
	"readalong/internal/grading"
	"readalong/internal/models"
	"readalong/internal/reading"
	"readalong/internal/realtime"
	"readalong/internal/turn"
)

type sessionOptions struct {
	passage string
	clips   string
	name    string
}

func sessionFlags(cmd *cobra.Command, opts *sessionOptions) {
	passageFlag(cmd, &opts.passage)
	cmd.Flags().StringVar(&opts.clips, "clips", ".", "directory holding your recordings, named 1.wav, 2.wav, ... by sentence")
	cmd.Flags().StringVar(&opts.name, "name", "", "name shown to your partner (default: profile name)")
}

func newHostCmd(a *app) *cobra.Command {
	opts := &sessionOptions{}
	var code string

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Start a reading session and wait for a partner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if code == "" {
				var err error
				if code, err = credentials.GenerateSessionCode(); err != nil {
					return err
				}
			}
			printf(cmd.OutOrStdout(), "Share this code with your reading buddy: %s\n", code)
			return a.read(cmd, models.RoleHost, code, opts)
		},
	}

	sessionFlags(cmd, opts)
	cmd.Flags().StringVar(&code, "code", "", "use this session code instead of a new one")
	return cmd
}

func newJoinCmd(a *app) *cobra.Command {
	opts := &sessionOptions{}

	cmd := &cobra.Command{
		Use:   "join CODE",
		Short: "Join a friend's reading session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.read(cmd, models.RolePeer, args[0], opts)
		},
	}

	sessionFlags(cmd, opts)
	return cmd
}

func (a *app) read(cmd *cobra.Command, role models.Role, code string, opts *sessionOptions) error {
	ctx := cmd.Context()
	if err := credentials.ValidateSessionCode(code); err != nil {
		return err
	}
	passage, err := a.library.Get(opts.passage)
	if err != nil {
		return err
	}
	sess, client, err := a.client(ctx)
	if err != nil {
		return err
	}

	sctx := reading.NewSessionContext()
	name := opts.name
	if profile, err := client.GetProfile(ctx, sess.UserID); err == nil {
		if name == "" {
			name = profile.Name
		}
		if err := sctx.SetAvatar(reading.Avatar(profile.Avatar)); err != nil {
			a.log.Debug().Err(err).Msg("avatar_ignored")
		}
	} else if errors.Is(err, apperr.ErrUnauthorized) {
		return err
	}
	if name == "" {
		name = sess.Name
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+sess.Token.AccessToken)

	var rs *reading.Session
	recorder := grading.NewFileRecorder(func() string {
		_, state := rs.Turn()
		return clipFor(opts.clips, state.SentenceIndex)
	})

	rs, err = reading.New(reading.Config{
		SessionCode:   code,
		Self:          models.Participant{ID: sess.UserID, DisplayName: name, Role: role},
		Sentences:     passage.Sentences,
		SettleDelay:   a.cfg.SettleDelay,
		LeaveDebounce: a.cfg.LeaveDebounce,
		MaxRecording:  a.cfg.MaxRecording,
	}, reading.Deps{
		Transport: realtime.NewWebsocket(a.cfg.ServerURL, header, a.log),
		Recorder:  recorder,
		Grader:    grading.NewClient(a.cfg.GradingURL, a.cfg.UploadTimeout, a.log),
		Profiles:  client,
		Context:   sctx,
		Logger:    a.log,
	})
	if err != nil {
		return err
	}

	printf(cmd.OutOrStdout(), "Reading %q as %s (%s). Type 'help' for commands.\n", passage.Title, name, sctx.Avatar())
	return play(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), rs, a.speaker())
}

// clipFor returns the recording for a sentence: the first file in dir named
// after the 1-based sentence number.
func clipFor(dir string, index int) string {
	n := index + 1
	matches, _ := filepath.Glob(filepath.Join(dir, fmt.Sprintf("%d.*", n)))
	if len(matches) == 0 {
		return filepath.Join(dir, fmt.Sprintf("%d.wav", n))
	}
	sort.Strings(matches)
	return matches[0]
}

type speaker interface {
	Speak(ctx context.Context, text string) (string, error)
}

type runResult struct {
	ending reading.Ending
	err    error
}

// play runs rs until it ends, reading commands from in and printing
// updates to out. A completed session is flushed to the reader's profile.
func play(ctx context.Context, in io.Reader, out io.Writer, rs *reading.Session, sp speaker) error {
	runCtx, leave := context.WithCancel(ctx)
	defer leave()
	stop := make(chan struct{})
	defer close(stop)
	lines := scanLines(in, stop)

	done := make(chan runResult, 1)
	go func() {
		ending, err := rs.Run(runCtx)
		done <- runResult{ending: ending, err: err}
	}()

	printf(out, "Waiting for your reading buddy...\n")
	for {
		select {
		case u := <-rs.Updates():
			printUpdate(out, rs, u)

		case line, ok := <-lines:
			if !ok {
				lines = nil
				leave()
				continue
			}
			if command(runCtx, out, rs, sp, line) {
				leave()
			}

		case res := <-done:
			drainUpdates(out, rs)
			return finish(ctx, out, rs, res, lines)
		}
	}
}

func scanLines(in io.Reader, stop <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-stop:
				return
			}
		}
	}()
	return lines
}

func drainUpdates(out io.Writer, rs *reading.Session) {
	for {
		select {
		case u := <-rs.Updates():
			printUpdate(out, rs, u)
		default:
			return
		}
	}
}

func finish(ctx context.Context, out io.Writer, rs *reading.Session, res runResult, lines <-chan string) error {
	switch res.ending {
	case reading.EndCompleted:
		printSummary(out, rs.Summary())
		for {
			err := rs.Finish(ctx)
			if err == nil {
				printf(out, "Your points were added to your profile.\n")
				return nil
			}
			if errors.Is(err, apperr.ErrUnauthorized) || lines == nil {
				return err
			}
			printf(out, "Could not save your points (%v). Press enter to try again or type 'quit'.\n", err)
			select {
			case line, ok := <-lines:
				if !ok || isQuit(line) {
					return err
				}
			case <-ctx.Done():
				return err
			}
		}

	case reading.EndPeerLeft:
		printf(out, "Your reading buddy left the session.\n")
		return nil

	case reading.EndLeft:
		printf(out, "You left the session.\n")
		return nil
	}

	if res.err != nil {
		return res.err
	}
	return fmt.Errorf("%w: session ended unexpectedly", apperr.ErrConnectivity)
}

func isQuit(line string) bool {
	switch strings.ToLower(line) {
	case "q", "quit", "leave", "exit":
		return true
	}
	return false
}

// command runs one typed command and reports whether the reader asked to
// leave.
func command(ctx context.Context, out io.Writer, rs *reading.Session, sp speaker, line string) bool {
	switch strings.ToLower(line) {
	case "":
	case "r", "read", "record":
		if !rs.IsMyTurn() {
			printf(out, "It's not your turn yet.\n")
			return false
		}
		report(out, rs.StartAttempt(ctx))
	case "s", "stop", "done":
		report(out, rs.StopAttempt(ctx))
	case "skip":
		report(out, rs.Skip(ctx))
	case "resync":
		if err := rs.Resync(ctx); err != nil {
			printf(out, "Still could not reach your reading buddy (%v).\n", err)
		} else {
			printf(out, "Sent your turn to your reading buddy again.\n")
		}
	case "l", "listen":
		listen(ctx, out, rs, sp)
	case "h", "help", "?":
		printHelp(out)
	default:
		if isQuit(line) {
			return true
		}
		printf(out, "Unknown command %q. Type 'help' for the list.\n", line)
	}
	return false
}

func report(out io.Writer, err error) {
	switch {
	case err == nil, errors.Is(err, turn.ErrBroadcastFailed):
	case errors.Is(err, turn.ErrNotYourTurn):
		printf(out, "It's not your turn yet.\n")
	case errors.Is(err, grading.ErrNoAttempt):
		printf(out, "You are not recording. Type 'read' first.\n")
	case errors.Is(err, grading.ErrBusy):
		printf(out, "Hold on, your last reading is still being checked.\n")
	default:
		printf(out, "Something went wrong: %v\n", err)
	}
}

func listen(ctx context.Context, out io.Writer, rs *reading.Session, sp speaker) {
	if sp == nil {
		printf(out, "Listening is not available.\n")
		return
	}
	_, state := rs.Turn()
	sentences := rs.Sentences()
	if state.SentenceIndex >= len(sentences) {
		return
	}
	path, err := sp.Speak(ctx, sentences[state.SentenceIndex])
	if err != nil {
		printf(out, "Could not get the sentence audio (%v).\n", err)
		return
	}
	printf(out, "Sentence audio saved to %s\n", path)
}

func printHelp(out io.Writer) {
	printf(out, "Commands:\n")
	printf(out, "  read     start recording the current sentence\n")
	printf(out, "  stop     stop recording and check your reading\n")
	printf(out, "  skip     pass this sentence to your buddy\n")
	printf(out, "  listen   save a spoken version of the sentence\n")
	printf(out, "  resync   resend the current turn to your buddy\n")
	printf(out, "  quit     leave the session\n")
}

func printUpdate(out io.Writer, rs *reading.Session, u reading.Update) {
	switch u.Kind {
	case reading.UpdatePeerJoined:
		printf(out, "%s joined the session.\n", u.Peer.Name())

	case reading.UpdateTurn:
		sentences := rs.Sentences()
		if u.Turn.SentenceIndex < len(sentences) {
			printf(out, "%s\n", sentenceLabel(u.Turn.SentenceIndex, len(sentences), sentences[u.Turn.SentenceIndex]))
		}
		if u.MyTurn {
			printf(out, "Your turn! Type 'read' to start recording.\n")
			return
		}
		peer, _ := rs.Peer()
		printf(out, "Waiting for %s to read.\n", peer.Name())

	case reading.UpdateRecording:
		printf(out, "Recording... type 'stop' when you are done.\n")

	case reading.UpdateUploading:
		printf(out, "Checking your reading...\n")

	case reading.UpdateGraded:
		printf(out, "%s\n", u.Feedback.Message)
		if u.Result != nil {
			if text := models.FriendlyFeedback(u.Result.Feedback); text != "" {
				printf(out, "%s\n", text)
			}
		}
		if u.Score > 0 {
			printf(out, "+%d points\n", u.Score)
		} else if rs.Context().Frustrated() {
			printf(out, "Take a deep breath. Type 'listen' to hear the sentence first.\n")
		}

	case reading.UpdateSubmissionFailed:
		printf(out, "Could not check your reading (%v). Type 'read' to try again.\n", u.Err)

	case reading.UpdateBroadcastFailed:
		printf(out, "Could not reach your reading buddy (%v). Type 'resync' to try again.\n", u.Err)

	case reading.UpdateCompleted:
		printf(out, "All sentences read!\n")
	}
}

func printSummary(out io.Writer, s reading.Summary) {
	printf(out, "You scored %d points.\n", s.Total)
	printf(out, "%s %s\n", s.Award.Emoji, s.Award.Message)
}
