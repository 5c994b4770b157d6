package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/core/types"
)

// Voices is the closed voice catalog offered to learners.
var Voices = []types.Voice{
	{ID: "alloy", Name: "Alloy", Description: "Neutral and balanced"},
	{ID: "ash", Name: "Ash", Description: "Clear and steady", MinAge: 10},
	{ID: "ballad", Name: "Ballad", Description: "Warm storyteller"},
	{ID: "coral", Name: "Coral", Description: "Bright and friendly"},
	{ID: "echo", Name: "Echo", Description: "Calm and measured", MinAge: 10},
	{ID: "sage", Name: "Sage", Description: "Thoughtful and patient", MinAge: 12},
	{ID: "shimmer", Name: "Shimmer", Description: "Gentle and encouraging"},
	{ID: "verse", Name: "Verse", Description: "Playful and expressive", MaxAge: 12},
}

// VoiceByID looks a voice up in Voices.
func VoiceByID(id string) (types.Voice, bool) {
	for _, v := range Voices {
		if v.ID == id {
			return v, true
		}
	}
	return types.Voice{}, false
}

type VoicesHandler struct{}

func (h VoicesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	out := make([]types.Voice, 0, len(Voices))
	raw := strings.TrimSpace(r.URL.Query().Get("age"))
	if raw == "" {
		out = append(out, Voices...)
		writeJSON(w, http.StatusOK, types.VoicesResponse{Voices: out})
		return
	}
	age, err := strconv.Atoi(raw)
	if err != nil || age < types.MinLearnerAge || age > types.MaxLearnerAge {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("age must be an integer between 4 and 18", "age"))
		return
	}
	for _, v := range Voices {
		if v.SuitableFor(age) {
			out = append(out, v)
		}
	}
	writeJSON(w, http.StatusOK, types.VoicesResponse{Voices: out})
}
