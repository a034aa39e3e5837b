package diffpreview

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/loog-project/nmldiff/pkg/diffmap"
)

// Render renders a YAML-like diff view of an artifact
func Render(art *diffmap.Artifact, theme Theme) string {
	return RenderYAML(FromArtifact(art), theme, DefaultRenderOptions)
}

// RenderWithOptions renders a YAML-like diff view with custom options
func RenderWithOptions(art *diffmap.Artifact, a, b diffmap.Tree, theme Theme, opts RenderOptions) string {
	return RenderYAML(Annotate(art, a, b), theme, opts)
}

// Summary returns a one-line overview of an artifact.
func Summary(art *diffmap.Artifact) string {
	s := art.Stats()
	return fmt.Sprintf("%s → %s: %s differing, %s equal, %s only in %s, %s only in %s",
		art.A, art.B,
		humanize.Comma(int64(s.Differing)),
		humanize.Comma(int64(s.Equal)),
		humanize.Comma(int64(s.OnlyInA)), art.A,
		humanize.Comma(int64(s.OnlyInB)), art.B,
	)
}
