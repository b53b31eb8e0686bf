package dispatch

import "os"

func readFile(path string) (string, bool) {
	data, err := os.ReadFile(path) // #nosec G304 - project-controlled doc/prompt path
	if err != nil {
		return "", false
	}
	return string(data), true
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
