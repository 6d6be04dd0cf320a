package core

import (
	"log"
	"os"
	"path/filepath"
)

// Getwd tries to find the project root, i.e. the closest parent holding a go.mod or a config dir.
// go-test changes the working directory to the test package being run during tests, so the
// current directory alone cannot be trusted. Falls back to the current directory.
func Getwd() string {
	if root := os.Getenv("ULMS_ROOT"); root != "" {
		return root
	}
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		for _, marker := range []string{"go.mod", "config"} {
			if _, err := os.Stat(filepath.Join(currDir, marker)); err == nil {
				return currDir
			}
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
