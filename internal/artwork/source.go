package artwork

import "context"

// Source finds an artwork URL for a track. An empty URL with a nil error
// means the source has no artwork for it.
type Source interface {
	ArtworkURL(ctx context.Context, artist, track, album string) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, artist, track, album string) (string, error)

// ArtworkURL implements Source.
func (f SourceFunc) ArtworkURL(ctx context.Context, artist, track, album string) (string, error) {
	return f(ctx, artist, track, album)
}
