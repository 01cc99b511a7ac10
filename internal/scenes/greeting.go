package scenes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/trymwestin/cxr/internal/core/session"
	"github.com/trymwestin/cxr/internal/core/viewproto"
)

// Icon names the greeting view alternates between.
const (
	IconPrimary   = "icon1"
	IconSecondary = "vector"
)

const (
	textID  = "textView"
	imageID = "imageView"
)

// ErrNotPNG is returned when an icon file is not a PNG image.
var ErrNotPNG = errors.New("scenes: icon is not a PNG image")

// Greeting is the demo custom view: a black panel with a line of text above
// an image.
type Greeting struct {
	sess     Session
	iconsDir string
	log      *slog.Logger

	mu    sync.Mutex
	root  *viewproto.Node
	count int32
}

// NewGreeting builds the initial tree. iconsDir holds icon1.png and
// vector.png for UploadIcons.
func NewGreeting(sess Session, iconsDir string, log *slog.Logger) (*Greeting, error) {
	text, err := greetingText("Hello World")
	if err != nil {
		return nil, err
	}
	image, err := greetingImage(IconSecondary)
	if err != nil {
		return nil, err
	}
	root, err := buildNode(viewproto.KindLinearLayout, map[string]string{
		"id":              "root",
		"layout_width":    "match_parent",
		"layout_height":   "match_parent",
		"marginTop":       "160dp",
		"marginBottom":    "80dp",
		"backgroundColor": "#FF000000",
		"orientation":     "vertical",
		"gravity":         "center_horizontal",
	}, text, image)
	if err != nil {
		return nil, err
	}
	return &Greeting{sess: sess, iconsDir: iconsDir, log: log, root: root}, nil
}

func buildNode(kind viewproto.Kind, values map[string]string, children ...*viewproto.Node) (*viewproto.Node, error) {
	props, err := viewproto.BuildProps(kind, values)
	if err != nil {
		return nil, fmt.Errorf("scenes: %s: %w", kind, err)
	}
	return viewproto.NewNode(props, children...)
}

func greetingTextProps(text string) (*viewproto.Props, error) {
	return viewproto.BuildProps(viewproto.KindTextView, map[string]string{
		"id":            textID,
		"layout_width":  "wrap_content",
		"layout_height": "wrap_content",
		"text":          text,
		"textColor":     "#00FF00",
		"textSize":      "16sp",
		"gravity":       "center",
		"textStyle":     "bold",
		"paddingStart":  "16dp",
		"paddingEnd":    "16dp",
	})
}

func greetingImageProps(name string) (*viewproto.Props, error) {
	return viewproto.BuildProps(viewproto.KindImageView, map[string]string{
		"id":            imageID,
		"layout_width":  "120dp",
		"layout_height": "120dp",
		"name":          name,
		"scaleType":     "center",
	})
}

func greetingText(text string) (*viewproto.Node, error) {
	p, err := greetingTextProps(text)
	if err != nil {
		return nil, err
	}
	return viewproto.NewNode(p)
}

func greetingImage(name string) (*viewproto.Node, error) {
	p, err := greetingImageProps(name)
	if err != nil {
		return nil, err
	}
	return viewproto.NewNode(p)
}

// Tree returns a copy of the current tree.
func (g *Greeting) Tree() *viewproto.Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.root.Clone()
}

// Count returns the number of updates applied so far.
func (g *Greeting) Count() int32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count
}

// Open shows the current tree.
func (g *Greeting) Open(ctx context.Context) error {
	return g.sess.OpenView(ctx, g.Tree())
}

// Close dismisses the view.
func (g *Greeting) Close(ctx context.Context) error {
	return g.sess.CloseView(ctx)
}

// Toggle opens the view when it is closed and closes it otherwise. It
// reports whether the view was asked to open.
func (g *Greeting) Toggle(ctx context.Context) (bool, error) {
	if g.sess.State().ViewOpen() {
		return false, g.Close(ctx)
	}
	return true, g.Open(ctx)
}

// Update swaps the image between the two icons and stamps the update count
// into the text. The local tree follows so a later Open shows the same
// content.
func (g *Greeting) Update(ctx context.Context) (*viewproto.UpdateBatch, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	name := IconSecondary
	if g.count%2 == 0 {
		name = IconPrimary
	}
	text := "Hello Rokid " + strconv.FormatInt(int64(g.count), 10)

	batch := viewproto.NewUpdateBatch()
	if err := batch.Add(imageID).SetField(viewproto.KindImageView, viewproto.FieldName, name); err != nil {
		return nil, err
	}
	if err := batch.Add(textID).SetField(viewproto.KindTextView, viewproto.FieldText, text); err != nil {
		return nil, err
	}

	g.log.Debug("updating greeting view", "count", g.count)
	if err := g.sess.UpdateView(ctx, batch); err != nil {
		return nil, err
	}

	if err := g.replaceChildren(text, name); err != nil {
		return nil, err
	}
	g.count++
	if g.count == math.MaxInt32 {
		g.count = 1
	}
	return batch, nil
}

// SetText replaces the greeting text on the open view.
func (g *Greeting) SetText(ctx context.Context, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	batch := viewproto.NewUpdateBatch()
	if err := batch.Add(textID).SetField(viewproto.KindTextView, viewproto.FieldText, text); err != nil {
		return err
	}
	if err := g.sess.UpdateView(ctx, batch); err != nil {
		return err
	}
	tp, err := greetingTextProps(text)
	if err != nil {
		return err
	}
	return g.root.Child(0).SetProps(tp)
}

func (g *Greeting) replaceChildren(text, image string) error {
	tp, err := greetingTextProps(text)
	if err != nil {
		return err
	}
	ip, err := greetingImageProps(image)
	if err != nil {
		return err
	}
	if err := g.root.Child(0).SetProps(tp); err != nil {
		return err
	}
	return g.root.Child(1).SetProps(ip)
}

// UploadIcons sends both greeting icons from the icons directory.
func (g *Greeting) UploadIcons(ctx context.Context) error {
	icons, err := LoadIcons(g.iconsDir, IconPrimary, IconSecondary)
	if err != nil {
		return err
	}
	if err := g.sess.SendIcons(ctx, icons); err != nil {
		return err
	}
	g.log.Info("icons uploaded", "count", len(icons))
	return nil
}

// LoadIcons reads <name>.png for each name from dir and checks that each
// file is a PNG image.
func LoadIcons(dir string, names ...string) ([]session.Icon, error) {
	icons := make([]session.Icon, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name+".png")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("scenes: read icon: %w", err)
		}
		if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotPNG, path, err)
		}
		icons = append(icons, session.Icon{Name: name, Data: data})
	}
	return icons, nil
}
