package jobs

import (
	"strings"

	"server/internal/domain"
)

// negativePrompt lists artifacts the video model must avoid. Kept as one
// block so the whole exclusion list travels with every submission.
const negativePrompt = "text, captions, subtitles, annotations, logos, low quality, static shot, slideshow, " +
	"ugly, bad anatomy, extra limbs, deformed faces, identity drift, face morphing, " +
	"weird physics, backwards motion, reverse playback, teleporting, time jump glitches, " +
	"body interpenetration, merged players, clipping through objects, impossible collisions, " +
	"random extra characters, sudden outfit changes, disappearing equipment"

func baseImageStyle(style domain.Style) string {
	if style == domain.StyleAnimated {
		return "Stylized animated vertical short frame, bold shapes, vivid colors, " +
			"expressive characters, no text overlays, no subtitles."
	}
	return "Cinematic vertical short frame, realistic lighting, crisp detail, " +
		"dynamic sports/news atmosphere, no text overlays, no subtitles."
}

// buildImagePrompt assembles the first-frame prompt for image generation.
func buildImagePrompt(title, outcome, originalLink string, style domain.Style) string {
	return strings.Join([]string{
		baseImageStyle(style),
		"Title context: " + title,
		"Scene context: " + outcome,
		"Source context link: " + originalLink,
		"Generate the opening keyframe of the story.",
	}, "\n")
}

// buildVideoPrompt assembles the generation prompt for the video model.
func buildVideoPrompt(title, outcome, originalLink string, style domain.Style) string {
	flavor := "Realistic cinematic action, handheld-camera energy, constant escalation across the full duration."
	if style == domain.StyleAnimated {
		flavor = "Stylized animation, exaggerated motion, punchy transitions, constant energy across the full duration."
	}
	return strings.Join([]string{
		"Short vertical video dramatizing the outcome below.",
		flavor,
		"Title: " + title,
		"Outcome: " + outcome,
		"Source context link: " + originalLink,
		"Keep continuity with the source image used as the starting frame: same characters, same environment, same lighting direction.",
	}, "\n")
}
