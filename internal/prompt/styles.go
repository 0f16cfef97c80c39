package prompt

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownStyle = errors.New("unknown style")

// Style ist ein Eintrag im Stilkatalog
type Style struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// Standardwerte der Stilübertragung, wenn die Anfrage keine setzt
const (
	DefaultStrength       = 0.6
	DefaultGuidanceScale  = 7.5
	DefaultInferenceSteps = 50
)

var catalog = map[string]Style{
	"futuristic": {
		ID:     "futuristic",
		Name:   "Futuristic Portrait",
		Prompt: "A hyper-realistic portrait of the person in futuristic cyberpunk attire with neon lights and a sci-fi background",
	},
	"retro 80s": {
		ID:     "retro 80s",
		Name:   "Retro 80s",
		Prompt: "A photo-realistic portrait of the person in vibrant retro 80s clothing with neon colors and a vintage background",
	},
	"baseball": {
		ID:     "baseball",
		Name:   "Baseball Player Portrait",
		Prompt: "A photo-realistic portrait of the person transformed into a professional baseball player with a stadium and sports gear",
	},
	"astronaut": {
		ID:     "astronaut",
		Name:   "Astronaut Portrait",
		Prompt: "a detailed portrait of the same person wearing a NASA spacesuit, face visible through helmet visor, maintaining exact facial features, professional photography, highly detailed",
	},
	"anime": {
		ID:     "anime",
		Name:   "Anime Style",
		Prompt: "a high quality anime portrait maintaining the same facial structure and features, Studio Ghibli style, detailed, professional illustration",
	},
	"oil": {
		ID:     "oil",
		Name:   "Oil Painting",
		Prompt: "an oil painting portrait in classical style maintaining exact likeness and facial features, masterpiece, detailed brushwork, professional art",
	},
	"watercolor": {
		ID:     "watercolor",
		Name:   "Watercolor",
		Prompt: "a watercolor portrait maintaining precise facial features and expression, artistic, detailed, professional illustration",
	},
}

// Lookup liefert den Stil zu einer ID
func Lookup(id string) (Style, error) {
	s, ok := catalog[id]
	if !ok {
		return Style{}, fmt.Errorf("%w: %q", ErrUnknownStyle, id)
	}
	return s, nil
}

// Styles liefert alle Stile, sortiert nach ID
func Styles() []Style {
	out := make([]Style, 0, len(catalog))
	for _, s := range catalog {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
