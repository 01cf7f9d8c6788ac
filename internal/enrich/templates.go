package enrich

import (
	"context"
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/manash/imgpost/pkg/models"
)

const HashtagCount = 15

var (
	styles       = []string{"cyberpunk", "vaporwave", "retrowave", "synthwave", "futuristic", "neon-noir"}
	subjects     = []string{"android", "cyborg", "AI being", "digital entity", "holographic figure", "synthetic consciousness"}
	environments = []string{"digital landscape", "virtual reality", "cyberspace", "data stream", "neural network", "quantum realm"}
	moods        = []string{"contemplative", "enigmatic", "ethereal", "mysterious", "transcendent", "surreal"}
	lighting     = []string{"neon glow", "holographic light", "digital aurora", "binary sunset", "quantum particles", "data streams"}
	elements     = []string{"floating code fragments", "geometric patterns", "digital artifacts", "glitch effects", "matrix-like symbols", "energy fields"}

	baseHashtags = []string{
		"AIart", "artificialintelligence", "digitalart", "aiartcommunity", "futuretech",
		"aiartwork", "deeplearning", "machinelearning", "digitalcreature", "aigenerated",
		"futuristic", "cyberpunk", "digitalworld", "aigenart", "aiartist",
	}
	styleHashtags = []string{
		"cyberpunkart", "vaporwaveart", "synthwave", "retrowave", "scifiart",
		"conceptart", "digitalillustration", "futureart", "technofuturism", "cyberpunkstyle",
	}
)

const styleHashtagSample = 5

var templatePattern = regexp.MustCompile("^A " + alt(moods) + " " + alt(subjects) + " in a " + alt(styles) + " " + alt(environments) +
	", illuminated by " + alt(lighting) + ", surrounded by " + alt(elements) +
	`, ultra detailed, 8k resolution, hyperrealistic digital art$`)

func alt(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return "(?:" + strings.Join(quoted, "|") + ")"
}

// TemplateGenerator produces randomized AI-art prompts. Output is one of the
// grammar's expansions; pass a seeded source to pin it.
type TemplateGenerator struct {
	rng *rand.Rand
}

func NewTemplateGenerator(rng *rand.Rand) *TemplateGenerator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &TemplateGenerator{rng: rng}
}

func (g *TemplateGenerator) pick(words []string) string {
	return words[g.rng.IntN(len(words))]
}

func (g *TemplateGenerator) Prompt() string {
	style := g.pick(styles)
	subject := g.pick(subjects)
	environment := g.pick(environments)
	mood := g.pick(moods)
	light := g.pick(lighting)
	element := g.pick(elements)

	return "A " + mood + " " + subject + " in a " + style + " " + environment +
		", illuminated by " + light + ", surrounded by " + element +
		", ultra detailed, 8k resolution, hyperrealistic digital art"
}

// Hashtags returns HashtagCount tags drawn from the base set plus a random
// sample of style tags, in random order.
func (g *TemplateGenerator) Hashtags() []string {
	all := make([]string, 0, len(baseHashtags)+styleHashtagSample)
	all = append(all, baseHashtags...)
	for _, i := range g.rng.Perm(len(styleHashtags))[:styleHashtagSample] {
		all = append(all, styleHashtags[i])
	}
	g.rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	return all[:HashtagCount]
}

// Enrich ignores the topic.
func (g *TemplateGenerator) Enrich(_ context.Context, _ string) (*models.Enrichment, error) {
	return &models.Enrichment{
		Prompt:   g.Prompt(),
		Hashtags: g.Hashtags(),
		Source:   SourceTemplate,
	}, nil
}

// Matches reports whether prompt is an expansion of the template grammar.
func Matches(prompt string) bool {
	return templatePattern.MatchString(prompt)
}

// IsTemplateHashtag reports whether tag can be produced by Hashtags.
func IsTemplateHashtag(tag string) bool {
	for _, set := range [][]string{baseHashtags, styleHashtags} {
		for _, t := range set {
			if t == tag {
				return true
			}
		}
	}
	return false
}
