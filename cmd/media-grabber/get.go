package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"media-grabber/internal/fault"
	"media-grabber/internal/handlers"
	"media-grabber/internal/mediatypes"
)

// errTerminal is returned when binary output would be written to a terminal.
var errTerminal = errors.New("refusing to write media to a terminal, use --out or redirect stdout")

type getFlags struct {
	kind    string
	out     string
	offset  string
	width   int
	quality string
	debug   bool
}

func newGetCmd() *cobra.Command {
	var flags getFlags

	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Download one media item to a file",
		Long: `Download one media item to a file. Without --out the file is named after the
media title and written to the current directory; --out - writes to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.kind, "kind", "k", "video", "Output kind: audio | video | clip | frame")
	cmd.Flags().StringVarP(&flags.out, "out", "o", "", "Output file or directory, - for stdout")
	cmd.Flags().StringVar(&flags.offset, "offset", "", "Frame offset, e.g. 90, 1:30 or 90s")
	cmd.Flags().IntVar(&flags.width, "width", 0, "Frame width in pixels (0 keeps the source width)")
	cmd.Flags().StringVarP(&flags.quality, "quality", "q", "", "Quality class: highest | lowest | highestaudio | lowestaudio | highestvideo")
	cmd.Flags().BoolVarP(&flags.debug, "debug", "x", false, "Debug logging to stderr")

	return cmd
}

func runGet(cmd *cobra.Command, rawURL string, flags getFlags) error {
	kind, ok := mediatypes.ParseOutputKind(flags.kind)
	if !ok {
		return fmt.Errorf("unknown kind %q", flags.kind)
	}

	stdout := cmd.OutOrStdout()
	if flags.out == "-" && isTerminal(stdout) {
		return errTerminal
	}

	config, err := loadCLIConfig(flags.debug)
	if err != nil {
		return err
	}

	req, err := handlers.OptionsFromConfig(config).BuildRequest(rawURL, kind, handlers.DownloadParams{
		Offset:  flags.offset,
		Width:   flags.width,
		Quality: flags.quality,
		// Files want a Content-Length-sized, fully written result.
		Mode: "file",
	})
	if err != nil {
		return err
	}

	a, err := newApp(config, false)
	if err != nil {
		return err
	}
	defer a.close()

	fw := newFileWriter(flags.out, stdout)
	res, err := a.pipeline.Run(cmd.Context(), fw, req)
	if closeErr := fw.finish(err); err == nil {
		err = closeErr
	}
	if err != nil {
		if fe, ok := fault.As(err); ok {
			return fmt.Errorf("%s: %w", fault.Message(fe), err)
		}
		return err
	}

	if fw.path != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s (%d bytes)\n", fw.path, res.Bytes)
	}
	return nil
}

func newInfoCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "info <url>",
		Short: "Print media metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadCLIConfig(debug)
			if err != nil {
				return err
			}
			a, err := newApp(config, false)
			if err != nil {
				return err
			}
			defer a.close()

			meta, err := a.resolver.Resolve(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", fault.Message(err), err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(handlers.NewInfoResponse(meta))
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "x", false, "Debug logging to stderr")

	return cmd
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// fileWriter adapts an output file to http.ResponseWriter so that one-shot
// downloads go through the same delivery path as HTTP responses. The file is
// created on the first body write, once the suggested filename is known.
type fileWriter struct {
	header http.Header
	status int
	dest   string
	stdout io.Writer

	out  io.Writer
	file *os.File
	path string
}

func newFileWriter(dest string, stdout io.Writer) *fileWriter {
	return &fileWriter{header: make(http.Header), dest: dest, stdout: stdout}
}

func (f *fileWriter) Header() http.Header {
	return f.header
}

func (f *fileWriter) WriteHeader(code int) {
	if f.status == 0 {
		f.status = code
	}
}

func (f *fileWriter) Write(p []byte) (int, error) {
	if f.status == 0 {
		f.WriteHeader(http.StatusOK)
	}
	if f.out == nil {
		if err := f.open(); err != nil {
			return 0, err
		}
	}
	return f.out.Write(p)
}

func (f *fileWriter) open() error {
	if f.dest == "-" {
		f.out = f.stdout
		return nil
	}

	path := f.dest
	if path == "" {
		path = suggestedName(f.header.Get("Content-Disposition"))
	} else if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, suggestedName(f.header.Get("Content-Disposition")))
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	f.file, f.out, f.path = file, file, path
	return nil
}

// finish closes the output file, removing it when the run failed.
func (f *fileWriter) finish(runErr error) error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	if runErr != nil {
		_ = os.Remove(f.path)
		f.path = ""
	}
	return err
}

// suggestedName extracts the filename from a Content-Disposition header,
// preferring the UTF-8 form. Directory components are dropped.
func suggestedName(disposition string) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		if name := filepath.Base(params["filename"]); name != "" && name != "." && name != "/" && name != ".." {
			return name
		}
	}
	return "download"
}
