package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/mediagrab-go/internal/domain"
)

var (
	serverURL   string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:           "mediagrab",
		Short:         "mediagrab CLI - fetch video and audio through a local yt-dlp service",
		Long:          `A command-line interface for the mediagrab download service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:5000", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(serverCmd)

	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	serverCmd.AddCommand(serverStartCmd)
	serverCmd.AddCommand(serverStatusCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// signalContext is cancelled on Ctrl-C so an in-flight download is abandoned cleanly
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func requestFromFlags(cmd *cobra.Command, url string) domain.DownloadRequest {
	kind, _ := cmd.Flags().GetString("type")
	resolution, _ := cmd.Flags().GetString("resolution")
	playlist, _ := cmd.Flags().GetBool("playlist")
	return domain.DownloadRequest{
		URL:        url,
		Kind:       domain.MediaKind(kind),
		Resolution: resolution,
		Playlist:   playlist,
	}
}

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("type", "t", "video", "Media type (video, audio)")
	cmd.Flags().StringP("resolution", "r", "", "Video resolution override (e.g. 720p)")
	cmd.Flags().BoolP("playlist", "p", false, "Download the whole playlist as a zip")
}

var downloadCmd = &cobra.Command{
	Use:   "download [url]",
	Short: "Download a video or playlist and save it locally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		ctx, cancel := signalContext()
		defer cancel()

		output, _ := cmd.Flags().GetString("output")
		fmt.Println("Downloading, this may take a while...")
		path, err := newAPIClient(serverURL).download(ctx, requestFromFlags(cmd, args[0]), output)
		if err != nil {
			return err
		}
		fmt.Printf("Saved to %s\n", path)
		return nil
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit [url]",
	Short: "Start a background download job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		ctx, cancel := signalContext()
		defer cancel()

		client := newAPIClient(serverURL)
		job, err := client.submit(ctx, requestFromFlags(cmd, args[0]))
		if err != nil {
			return err
		}
		fmt.Printf("Job submitted\n")
		fmt.Printf("ID:     %s\n", job.ID)
		fmt.Printf("Status: %s\n", job.Status)

		if wait, _ := cmd.Flags().GetBool("wait"); !wait {
			return nil
		}
		output, _ := cmd.Flags().GetString("output")
		return watchAndFetch(ctx, client, job.ID, output)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		status, _ := cmd.Flags().GetString("status")

		jobs, err := newAPIClient(serverURL).listJobs(cmd.Context(), status)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tPROGRESS\tURL\tCREATED")
		for _, j := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%s\t%s\n",
				truncate(j.ID, 12),
				j.Request.Kind,
				j.Status,
				j.Progress,
				truncate(j.Request.URL, 40),
				j.CreatedAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show job details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		job, err := newAPIClient(serverURL).getJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printJob(job)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [id]",
	Short: "Follow the progress of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		ctx, cancel := signalContext()
		defer cancel()

		last, err := newAPIClient(serverURL).watch(ctx, args[0], printProgress)
		fmt.Println()
		if err != nil {
			return err
		}
		return progressOutcome(last)
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [id]",
	Short: "Save the artifact of a finished job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		output, _ := cmd.Flags().GetString("output")
		path, err := newAPIClient(serverURL).fetchArtifact(cmd.Context(), args[0], output)
		if err != nil {
			return err
		}
		fmt.Printf("Saved to %s\n", path)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		if err := newAPIClient(serverURL).cancel(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("Cancel requested")
		return nil
	},
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change download preferences",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the stored preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		view, err := newAPIClient(serverURL).getSettings(cmd.Context())
		if err != nil {
			return err
		}
		printSettings(view)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update the stored preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		quality, _ := cmd.Flags().GetString("video-quality")
		bitrate, _ := cmd.Flags().GetString("audio-bitrate")
		if quality == "" && bitrate == "" {
			return fmt.Errorf("nothing to update: pass --video-quality or --audio-bitrate")
		}

		ensureServer()
		view, err := newAPIClient(serverURL).updateSettings(cmd.Context(), domain.Settings{
			VideoQuality: quality,
			AudioBitrate: bitrate,
		})
		if err != nil {
			return err
		}
		printSettings(view)
		return nil
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the local server",
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background if it is not running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return ensureServerRunning()
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the server is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isServerRunning() {
			return fmt.Errorf("server not reachable at %s", serverURL)
		}
		fmt.Printf("Server running at %s\n", serverURL)
		return nil
	},
}

func init() {
	addRequestFlags(downloadCmd)
	addRequestFlags(submitCmd)
	downloadCmd.Flags().StringP("output", "o", ".", "Directory to save the file in")
	submitCmd.Flags().BoolP("wait", "w", false, "Follow progress and save the result when done")
	submitCmd.Flags().StringP("output", "o", ".", "Directory to save the file in (with --wait)")
	fetchCmd.Flags().StringP("output", "o", ".", "Directory to save the file in")
	listCmd.Flags().StringP("status", "s", "", "Filter by status")
	settingsSetCmd.Flags().String("video-quality", "", "Default video quality (e.g. 1080p, best)")
	settingsSetCmd.Flags().String("audio-bitrate", "", "Default audio bitrate (e.g. 192, 320, best)")
}

func watchAndFetch(ctx context.Context, client *apiClient, id, output string) error {
	last, err := client.watch(ctx, id, printProgress)
	fmt.Println()
	if err != nil {
		return err
	}
	if err := progressOutcome(last); err != nil {
		return err
	}
	path, err := client.fetchArtifact(ctx, id, output)
	if err != nil {
		return err
	}
	fmt.Printf("Saved to %s\n", path)
	return nil
}

func printProgress(e domain.ProgressEvent) {
	line := fmt.Sprintf("\r%-9s %5.1f%%", e.Status, e.Percent)
	if e.ItemsTotal > 0 {
		line += fmt.Sprintf("  [%d/%d]", e.ItemsDone, e.ItemsTotal)
	}
	fmt.Print(line)
}

// progressOutcome turns the last event of a stream into the command result
func progressOutcome(last domain.ProgressEvent) error {
	if last.Failed {
		msg := last.Message
		if msg == "" {
			msg = string(last.Status)
		}
		return fmt.Errorf("job %s failed: %s", last.JobID, msg)
	}
	if !last.Done {
		return fmt.Errorf("progress stream ended before job %s finished", last.JobID)
	}
	return nil
}

func printJob(job *domain.Job) {
	fmt.Printf("Job Details:\n")
	fmt.Printf("  ID:       %s\n", job.ID)
	fmt.Printf("  URL:      %s\n", job.Request.URL)
	fmt.Printf("  Type:     %s\n", job.Request.Kind)
	fmt.Printf("  Platform: %s\n", job.Platform)
	fmt.Printf("  Status:   %s\n", job.Status)
	fmt.Printf("  Progress: %.1f%%\n", job.Progress)
	if job.ItemsTotal > 0 {
		fmt.Printf("  Items:    %d/%d\n", job.ItemsDone, job.ItemsTotal)
	}
	if job.Title != "" {
		fmt.Printf("  Title:    %s\n", job.Title)
	}
	if job.ArtifactName != "" {
		fmt.Printf("  File:     %s\n", job.ArtifactName)
	}
	if job.ErrorMessage != "" {
		fmt.Printf("  Error:    %s (%s)\n", job.ErrorMessage, job.ErrorKind)
	}
	fmt.Printf("  Created:  %s\n", job.CreatedAt.Local().Format(time.DateTime))
}

func printSettings(view *settingsView) {
	height := "best"
	if view.ResolvedHeight > 0 {
		height = fmt.Sprintf("%dp", view.ResolvedHeight)
	}
	fmt.Println("Settings:")
	fmt.Printf("  Video quality: %s (resolves to %s)\n", view.VideoQuality, height)
	fmt.Printf("  Audio bitrate: %s (resolves to %s)\n", view.AudioBitrate, view.ResolvedBitrate)
}

func truncate(s string, maxLen int) string {
	if len([]rune(s)) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
