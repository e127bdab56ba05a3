package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/rrchai/medrun/internal/platform"
	"github.com/rrchai/medrun/internal/shell"
)

var (
	publishDir    string
	publishParent string
	publishFolder string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload result archives to the platform",
	Long: `Upload every result archive under a directory into a platform
folder. The folder is created under the configured parent when it does not
exist yet; uploads of already-present files overwrite the stored version.`,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().StringVarP(&publishDir, "dir", "d", "", "directory holding the result archives")
	publishCmd.Flags().StringVar(&publishParent, "parent", "", "platform parent entity (default from config)")
	publishCmd.Flags().StringVar(&publishFolder, "folder", "", "name of the platform folder to upload into")
	cobra.CheckErr(publishCmd.MarkFlagRequired("dir"))
	cobra.CheckErr(publishCmd.MarkFlagRequired("folder"))
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	parentID := publishParent
	if parentID == "" {
		parentID = cfg.Platform.ParentID
	}
	if parentID == "" {
		return fmt.Errorf("no platform parent entity configured; pass --parent or set platform.parent_id")
	}

	archives, err := collectArchives(publishDir)
	if err != nil {
		return err
	}
	if len(archives) == 0 {
		fmt.Printf("no archives found under %s\n", publishDir)
		return nil
	}

	client := platform.NewClient(cfg.Platform, &shell.Local{})

	folderID, err := client.CreateFolder(cmd.Context(), publishFolder, parentID)
	if err != nil {
		return fmt.Errorf("create platform folder %q: %w", publishFolder, err)
	}
	logger.Info().Str("folder_id", folderID).Int("archives", len(archives)).Msg("uploading archives")

	bar := progressbar.NewOptions(len(archives),
		progressbar.OptionSetDescription("uploading"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	var failed []string
	for _, path := range archives {
		if err := client.UploadFile(cmd.Context(), path, folderID); err != nil {
			logger.Error().Err(err).Str("archive", path).Msg("upload failed")
			failed = append(failed, filepath.Base(path))
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d uploads failed: %s",
			len(failed), len(archives), strings.Join(failed, ", "))
	}
	successColor.Printf("uploaded %d archive(s) to %s\n", len(archives), folderID)
	return nil
}

func collectArchives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read archive directory: %w", err)
	}
	var archives []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".zip") {
			continue
		}
		archives = append(archives, filepath.Join(dir, e.Name()))
	}
	sort.Strings(archives)
	return archives, nil
}
