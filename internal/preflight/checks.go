package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"intake/internal/chat"
	"intake/internal/config"
	"intake/internal/sheet"
)

// Identity reports who a chat token belongs to.
type Identity interface {
	CurrentUser(ctx context.Context) (chat.User, error)
}

// CheckChat verifies that the bot token authenticates against the chat API.
func CheckChat(ctx context.Context, probe Identity) Result {
	const name = "Chat API"

	if probe == nil {
		return Result{Name: name, Detail: "client unavailable"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	user, err := probe.CurrentUser(checkCtx)
	if err != nil {
		var apiErr *chat.APIError
		if errors.As(err, &apiErr) && (apiErr.Status == 401 || apiErr.Status == 403) {
			return Result{Name: name, Detail: "auth failed (invalid bot token)"}
		}
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("authenticated as %s", user.DisplayName())}
}

// CheckSheet verifies that the response sheet can be read and has a header row.
func CheckSheet(ctx context.Context, reader sheet.Reader) Result {
	const name = "Response sheet"

	if reader == nil {
		return Result{Name: name, Detail: "reader unavailable"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := reader.ReadAll(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	if len(rows) == 0 {
		return Result{Name: name, Detail: "sheet is empty (no header row)"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d columns, %d responses", len(rows[0]), len(rows)-1)}
}

// CheckChatCredentials verifies the chat section carries what the daemon
// needs to post and to grant roles.
func CheckChatCredentials(cfg config.Chat) Result {
	const name = "Chat credentials"

	var missing []string
	if strings.TrimSpace(cfg.Token) == "" {
		missing = append(missing, "token")
	}
	if strings.TrimSpace(cfg.GuildID) == "" {
		missing = append(missing, "guild_id")
	}
	if len(missing) > 0 {
		return Result{Name: name, Detail: "missing " + strings.Join(missing, ", ")}
	}
	return Result{Name: name, Passed: true, Detail: "token and guild configured"}
}

// CheckTrackDestinations verifies every configured track has a channel.
// Jobs for a track without one block the queue.
func CheckTrackDestinations(tracks []config.Track) Result {
	const name = "Track destinations"

	if len(tracks) == 0 {
		return Result{Name: name, Detail: "no tracks configured"}
	}
	var missing []string
	for _, track := range tracks {
		if strings.TrimSpace(track.ChannelID) == "" {
			missing = append(missing, track.Key)
		}
	}
	if len(missing) > 0 {
		return Result{Name: name, Detail: "no channel_id for " + strings.Join(missing, ", ")}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d tracks routed", len(tracks))}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (host unreachable)"
	}
	return err.Error()
}
