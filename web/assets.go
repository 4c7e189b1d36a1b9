package web

import (
	"embed"
	"io/fs"
)

//go:embed dist welcome.html
var Assets embed.FS

func Dist() (fs.FS, error) {
	return fs.Sub(Assets, "dist")
}

func Welcome() ([]byte, error) {
	return Assets.ReadFile("welcome.html")
}
