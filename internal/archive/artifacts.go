package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dotkeep/dotkeep/internal/manifest"
)

const (
	restoreScriptName = "restore.sh"
	readmeName        = "README.txt"
)

// restoreScript is the self-contained script placed at the archive root.
// It runs from the extracted archive and copies every file back into the
// invoking user's home directory, prompting before it overwrites anything.
const restoreScript = `#!/bin/sh
# Restore the files in this archive into the current user's home directory,
# preserving their relative layout. Existing files are overwritten.
set -u

cd "$(dirname "$0")" || exit 1

printf 'Restore these dotfiles into %s? Existing files will be overwritten. [y/N] ' "$HOME"
read -r answer
case "$answer" in
	y|Y|yes|YES) ;;
	*) echo "Restore cancelled."; exit 0 ;;
esac

find . \( -type f -o -type l \) ! -name restore.sh ! -name README.txt | while read -r f; do
	rel="${f#./}"
	dir=$(dirname "$rel")
	[ "$dir" = "." ] || mkdir -p "$HOME/$dir"
	cp -P -p "$f" "$HOME/$rel"
	echo "restored $rel"
done

echo "Done. See README.txt for post-restore steps."
`

// writeRestoreScript places the restore script at the staging root.
func writeRestoreScript(stagingRoot string) error {
	path := filepath.Join(stagingRoot, restoreScriptName)
	if err := os.WriteFile(path, []byte(restoreScript), 0o755); err != nil {
		return fmt.Errorf("write restore script: %w", err)
	}
	return nil
}

// writeReadme places the README, embedding the manifest and the
// operator-facing post-restore steps.
func writeReadme(stagingRoot string, m *manifest.Manifest) error {
	var b strings.Builder

	b.WriteString("dotkeep backup archive\n")
	b.WriteString("======================\n\n")
	b.WriteString(m.Render())
	b.WriteString(`Restoring
---------
Extract this archive and run ./restore.sh from the extracted directory.
The script copies every file back into your home directory and asks for
confirmation first, since it overwrites existing files.

Post-restore steps
------------------
Key-bearing directories need their permissions tightened after restore:

  chmod 700 ~/.ssh
  chmod 600 ~/.ssh/config 2>/dev/null
  chmod 700 ~/.gnupg 2>/dev/null

Private keys are never included in these archives; re-provision them
separately.
`)

	path := filepath.Join(stagingRoot, readmeName)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write readme: %w", err)
	}
	return nil
}
