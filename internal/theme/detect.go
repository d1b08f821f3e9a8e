package theme

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/ini.v1"
)

// EnvPrefix prefixes the color override variables, e.g. TORRENT_DECK_FG.
const EnvPrefix = "TORRENT_DECK_"

// source is one terminal whose config can provide a palette.
type source struct {
	name  string
	paths func(home string) []string
	parse func(path string) (Palette, bool)
}

var sources = []source{
	{"omarchy", func(home string) []string {
		return []string{filepath.Join(home, ".config", "omarchy", "current", "theme", "alacritty.toml")}
	}, parseAlacritty},
	{"alacritty", func(home string) []string {
		return []string{
			filepath.Join(home, ".config", "alacritty", "alacritty.toml"),
			filepath.Join(home, ".alacritty.toml"),
		}
	}, parseAlacritty},
	{"kitty", func(home string) []string {
		return []string{filepath.Join(home, ".config", "kitty", "kitty.conf")}
	}, parseKitty},
	{"foot", func(home string) []string {
		return []string{filepath.Join(home, ".config", "foot", "foot.ini")}
	}, parseFoot},
}

// Detect loads the palette for the current user.
func Detect() Palette {
	home, err := os.UserHomeDir()
	if err != nil {
		return applyEnvOverrides(DefaultPalette())
	}
	p, _ := DetectFrom(home)
	return p
}

// DetectFrom loads the palette from the terminal configs under home and
// reports which terminal it came from ("default" if none matched).
func DetectFrom(home string) (Palette, string) {
	for _, src := range sources {
		for _, path := range src.paths(home) {
			if p, ok := src.parse(path); ok {
				return applyEnvOverrides(p), src.name
			}
		}
	}
	return applyEnvOverrides(DefaultPalette()), "default"
}

// WatchDirs lists the config directories whose changes can alter the palette.
func WatchDirs(home string) []string {
	seen := map[string]bool{}
	var dirs []string
	for _, src := range sources {
		for _, path := range src.paths(home) {
			dir := filepath.Dir(path)
			if dir == home || seen[dir] {
				continue
			}
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

type alacrittyConfig struct {
	Colors struct {
		Primary struct {
			Background string `toml:"background"`
			Foreground string `toml:"foreground"`
		} `toml:"primary"`
		Selection struct {
			Background string `toml:"background"`
		} `toml:"selection"`
		Normal struct {
			Red    string `toml:"red"`
			Green  string `toml:"green"`
			Yellow string `toml:"yellow"`
		} `toml:"normal"`
	} `toml:"colors"`
}

func parseAlacritty(path string) (Palette, bool) {
	var cfg alacrittyConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Palette{}, false
	}
	c := cfg.Colors
	if c.Primary.Background == "" || c.Primary.Foreground == "" {
		return Palette{}, false
	}

	p := fromBase(c.Primary.Background, c.Primary.Foreground, c.Selection.Background)
	setIf(&p.Error, c.Normal.Red)
	setIf(&p.Good, c.Normal.Green)
	setIf(&p.Warn, c.Normal.Yellow)
	return p, true
}

func parseKitty(path string) (Palette, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Palette{}, false
	}
	defer f.Close()

	values := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		values[fields[0]] = fields[1]
	}
	if values["background"] == "" && values["foreground"] == "" {
		return Palette{}, false
	}

	def := DefaultPalette()
	bg, fg := values["background"], values["foreground"]
	if bg == "" {
		bg = def.BG
	}
	if fg == "" {
		fg = def.FG
	}
	p := fromBase(bg, fg, values["selection_background"])
	setIf(&p.Error, values["color1"])
	setIf(&p.Good, values["color2"])
	setIf(&p.Warn, values["color3"])
	return p, true
}

func parseFoot(path string) (Palette, bool) {
	cfg, err := ini.Load(path)
	if err != nil {
		return Palette{}, false
	}
	colors := cfg.Section("colors")
	bg := colors.Key("background").String()
	fg := colors.Key("foreground").String()
	if bg == "" || fg == "" {
		return Palette{}, false
	}

	p := fromBase(bg, fg, colors.Key("selection-background").String())
	setIf(&p.Error, colors.Key("regular1").String())
	setIf(&p.Good, colors.Key("regular2").String())
	setIf(&p.Warn, colors.Key("regular3").String())
	return p, true
}

// fromBase builds a palette from the terminal's background and foreground,
// deriving the rest.
func fromBase(bg, fg, selection string) Palette {
	p := DefaultPalette()
	p.BG = normalizeHex(bg)
	p.FG = normalizeHex(fg)
	p.Muted = dimColor(p.FG, 0.5)
	if selection != "" {
		p.AccentBg = normalizeHex(selection)
	} else {
		p.AccentBg = MixColors(p.BG, p.FG, 0.15)
	}
	return p
}

func setIf(dst *string, color string) {
	if color != "" {
		*dst = normalizeHex(color)
	}
}

func applyEnvOverrides(p Palette) Palette {
	for name, dst := range map[string]*string{
		"BG":     &p.BG,
		"FG":     &p.FG,
		"MUTED":  &p.Muted,
		"ACCENT": &p.Accent,
		"ERROR":  &p.Error,
	} {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = normalizeHex(v)
		}
	}
	return p
}

type rgb struct{ r, g, b uint8 }

func parseRGB(hex string) (rgb, bool) {
	hex = normalizeHex(hex)
	if len(hex) != 7 {
		return rgb{}, false
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return rgb{}, false
	}
	return rgb{uint8(v >> 16), uint8(v >> 8), uint8(v)}, true
}

func (c rgb) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.r, c.g, c.b)
}

// normalizeHex returns color as #rrggbb when it is a hex color in #rgb,
// rrggbb or 0xrrggbb form, and unchanged otherwise.
func normalizeHex(color string) string {
	color = strings.TrimSpace(color)
	switch {
	case strings.HasPrefix(color, "0x"), strings.HasPrefix(color, "0X"):
		color = color[2:]
	case strings.HasPrefix(color, "#"):
		color = color[1:]
	}
	if !isHex(color) {
		return "#" + color
	}
	switch len(color) {
	case 3:
		return strings.ToLower("#" + strings.Repeat(color[0:1], 2) + strings.Repeat(color[1:2], 2) + strings.Repeat(color[2:3], 2))
	case 6:
		return strings.ToLower("#" + color)
	}
	return "#" + color
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range strings.ToLower(s) {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// dimColor scales a hex color toward black by factor.
func dimColor(hex string, factor float64) string {
	c, ok := parseRGB(hex)
	if !ok {
		return hex
	}
	scale := func(v uint8) uint8 { return uint8(float64(v) * factor) }
	return rgb{scale(c.r), scale(c.g), scale(c.b)}.String()
}

// MixColors blends two colors; t=0 is hex1 and t=1 is hex2.
func MixColors(hex1, hex2 string, t float64) string {
	a, ok1 := parseRGB(hex1)
	b, ok2 := parseRGB(hex2)
	if !ok1 || !ok2 {
		return hex1
	}
	mix := func(x, y uint8) uint8 { return uint8(float64(x)*(1-t) + float64(y)*t) }
	return rgb{mix(a.r, b.r), mix(a.g, b.g), mix(a.b, b.b)}.String()
}
