package files

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/primait/nembo/pkg/io/logging"
)

func PrettyJSONToFile(filePath string, fileName string, s interface{}) error {
	if err := os.MkdirAll(filePath, os.FileMode(0775)); err != nil {
		return err
	}

	filePath = filepath.Join(filePath, fileName)
	return os.WriteFile(filePath, logging.GetLogManager().PrettyJSON(s), 0600)
}

func NormalizePath(path string) string {
	usr, _ := user.Current()
	dir := usr.HomeDir
	if path == "~" {
		path = dir
	} else if strings.HasPrefix(path, "~/") {
		path = filepath.Join(dir, path[2:])
	}

	path, _ = filepath.Abs(filepath.Clean(path))
	return path
}
