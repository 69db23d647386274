package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/tunesync/internal/formatter"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/server"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// expectOK turns transport failures and non-2xx answers into errors carrying the daemon's message.
func expectOK(resp *services.APIResponse, err error) (*services.APIResponse, error) {
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: %s (status %d)", shared.ErrAPIRequest, resp.ErrorMessage(), resp.StatusCode)
	}
	return resp, nil
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := strings.TrimSpace(cmd.StringArg(name))
	if v == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	return v, nil
}

// PlaylistsAdd registers a playlist with the daemon.
func (r *Runner) PlaylistsAdd(ctx context.Context, cmd *cli.Command) error {
	rawURL, err := requireArg(cmd, "url")
	if err != nil {
		return err
	}

	resp, err := expectOK(r.api.PostJSON(ctx, "/api/playlists", server.AddPlaylistRequest{URL: rawURL, Name: cmd.String("name")}))
	if err != nil {
		return err
	}

	var res tasks.AddResult
	if err := resp.Decode(&res); err != nil {
		return err
	}

	switch {
	case res.Accepted:
		r.writePlain("✓ Importing %s in the background (run %s)\n", res.Playlist.SourceURL, res.RunID)
	case res.Queued:
		r.writePlain("✓ Registered %s; import deferred to the next scan (%s)\n", res.Playlist.SourceURL, res.Reason)
	default:
		r.writePlain("✓ Registered %s\n", res.Playlist.SourceURL)
	}
	r.writePlain("Playlist ID: %s\n", res.Playlist.ID)
	return nil
}

// PlaylistsList prints active playlists with their counts.
func (r *Runner) PlaylistsList(ctx context.Context, cmd *cli.Command) error {
	var summaries []models.PlaylistSummary
	if err := r.api.GetInto(ctx, "/api/playlists", &summaries); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(summaries, true)
	}
	if len(summaries) == 0 {
		return r.writePlain("No playlists registered\n")
	}

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		name := s.DisplayName
		if name == "" {
			name = s.SourceURL
		}
		checked := "never"
		if s.LastCheckedAt != nil {
			checked = s.LastCheckedAt.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			s.ID, name,
			strconv.Itoa(s.Counts.Total), strconv.Itoa(s.Counts.Downloaded),
			strconv.Itoa(s.Counts.Pending), strconv.Itoa(s.Counts.Failed), checked,
		})
	}
	return r.writeTable([]string{"ID", "Name", "Tracks", "Downloaded", "Pending", "Failed", "Checked"}, rows)
}

// PlaylistsRemove deactivates a playlist on the daemon.
func (r *Runner) PlaylistsRemove(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	if _, err := expectOK(r.api.Delete(ctx, "/api/playlists/"+url.PathEscape(id))); err != nil {
		return err
	}
	return r.writePlain("✓ Playlist %s removed; downloaded files were kept\n", id)
}

// PlaylistsTracks prints the tracks of one playlist, optionally filtered by status.
func (r *Runner) PlaylistsTracks(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	status := models.TrackStatus(strings.ToLower(cmd.String("status")))
	if status != "" && !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidArgument, status)
	}

	var res server.PlaylistTracks
	if err := r.api.GetInto(ctx, "/api/playlists/"+url.PathEscape(id)+"/tracks", &res); err != nil {
		return err
	}
	if status != "" {
		res.Tracks = filterTracks(res.Tracks, status)
	}

	if cmd.Bool("json") {
		return r.writeJSON(res, true)
	}

	name := res.Playlist.DisplayName
	if name == "" {
		name = res.Playlist.SourceURL
	}
	r.writePlainHeader(name)
	c := res.Counts
	r.writePlain("%d tracks: %d downloaded, %d duplicate, %d pending, %d failed, %d restricted\n\n",
		c.Total, c.Downloaded, c.Duplicate, c.Pending, c.Failed, c.Restricted)

	rows := make([][]string, 0, len(res.Tracks))
	for _, t := range res.Tracks {
		rows = append(rows, []string{t.ID, t.Title, t.Uploader, formatter.FormatDuration(t.Duration), string(t.Status)})
	}
	return r.writeTable([]string{"ID", "Title", "Artist", "Length", "Status"}, rows)
}

func filterTracks(tracks []*models.Track, status models.TrackStatus) []*models.Track {
	out := []*models.Track{}
	for _, t := range tracks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// PlaylistsDrain asks the daemon to download the pending tracks of one playlist and waits.
func (r *Runner) PlaylistsDrain(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	r.logger.Info("draining playlist", "id", id)
	resp, err := expectOK(r.api.Post(ctx, "/api/playlists/"+url.PathEscape(id)+"/drain", nil))
	if err != nil {
		return err
	}

	var res tasks.DrainResult
	if err := resp.Decode(&res); err != nil {
		return err
	}
	return r.writePlain("Attempted %d: downloaded %d, duplicates %d, failed %d, restricted %d\n",
		res.Attempted, res.Downloaded, res.Duplicates, res.Failed, res.Restricted)
}

// Scan triggers a manual scan. A rejection because another operation is running is an error
// naming the holder.
func (r *Runner) Scan(ctx context.Context, cmd *cli.Command) error {
	resp, err := r.api.Post(ctx, "/api/check-now", nil)
	if err != nil {
		return err
	}

	var res server.ScanResponse
	if resp.StatusCode == http.StatusConflict {
		if err := resp.Decode(&res); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", shared.ErrAlreadyRunning, res.Reason)
	}
	if _, err := expectOK(resp, nil); err != nil {
		return err
	}
	if err := resp.Decode(&res); err != nil {
		return err
	}
	return r.writePlain("✓ Scan started (run %s)\n", res.RunID)
}

// Validate asks the daemon to check downloaded files on disk.
func (r *Runner) Validate(ctx context.Context, cmd *cli.Command) error {
	resp, err := expectOK(r.api.Post(ctx, "/api/validate", nil))
	if err != nil {
		return err
	}

	var res tasks.ValidationResult
	if err := resp.Decode(&res); err != nil {
		return err
	}

	r.writePlain("Checked %d files, %d missing\n", res.Checked, res.Missing)
	for _, id := range res.Demoted {
		r.writePlain("  requeued %s\n", id)
	}
	return nil
}

// Downloads prints the most recently resolved tracks.
func (r *Runner) Downloads(ctx context.Context, cmd *cli.Command) error {
	var tracks []*models.Track
	path := fmt.Sprintf("/api/downloads?limit=%d", cmd.Int("limit"))
	if err := r.api.GetInto(ctx, path, &tracks); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, true)
	}
	if len(tracks) == 0 {
		return r.writePlain("No downloads yet\n")
	}

	rows := make([][]string, 0, len(tracks))
	for _, t := range tracks {
		resolved := ""
		if t.ResolvedAt != nil {
			resolved = t.ResolvedAt.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{t.Title, t.Uploader, string(t.Status), t.FilePath, resolved})
	}
	return r.writeTable([]string{"Title", "Artist", "Status", "File", "Resolved"}, rows)
}

// Status prints the engine state, totals and settings of the daemon.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	var res server.StatusResponse
	if err := r.api.GetInto(ctx, "/api/status", &res); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(res, true)
	}

	r.writePlainHeader("tunesync @ " + r.api.BaseURL())

	state := "idle"
	if res.Engine.Busy {
		state = fmt.Sprintf("%s (%s)", res.Engine.Operation, res.Engine.Subject)
	}
	r.writePlain("Engine:     %s\n", state)
	if res.Engine.Activity != "" {
		r.writePlain("Activity:   %s\n", res.Engine.Activity)
	}
	r.writePlain("Scheduler:  %s every %s\n", runningLabel(res.Scheduler), res.Settings.CheckInterval)
	r.writePlain("Playlists:  %d active\n", res.Playlists)

	t := res.Totals
	r.writePlain("Tracks:     %d total, %d downloaded, %d duplicate, %d pending, %d failed, %d restricted\n",
		t.Total, t.Downloaded, t.Duplicate, t.Pending, t.Failed, t.Restricted)
	r.writePlain("Downloads:  %s (%s %s)\n", res.Settings.DownloadDir, res.Settings.AudioFormat, res.Settings.AudioQuality)

	if last := res.Engine.LastScan; last != nil {
		r.writePlainln("Last scan %s (%s): %d downloaded, %d failed, %d errors",
			last.RunID, last.Operation, last.Totals.Downloaded, last.Totals.Failed, last.Errors)
	}
	return nil
}

func runningLabel(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}

// Log prints the action log, newest first.
func (r *Runner) Log(ctx context.Context, cmd *cli.Command) error {
	var entries []models.ActionLogEntry
	path := fmt.Sprintf("/api/log?limit=%d", cmd.Int("limit"))
	if err := r.api.GetInto(ctx, path, &entries); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(entries, true)
	}

	for _, e := range entries {
		subject := e.TrackID
		if subject == "" {
			subject = e.PlaylistID
		}
		line := fmt.Sprintf("%s  %-16s %s", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Action, subject)
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		if e.Error != "" {
			line += "  error: " + e.Error
		}
		r.writePlain("%s\n", line)
	}
	return nil
}

// APIGet makes a direct GET request to the daemon
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	path, err := requireArg(cmd, "path")
	if err != nil {
		return err
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	r.logger.Debug("GET request", "path", path)

	resp, err := expectOK(r.api.Get(ctx, path))
	if err != nil {
		return err
	}

	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, !cmd.Bool("json"))
	}

	r.output.Write(resp.Body)
	r.output.Write([]byte("\n"))
	return nil
}
