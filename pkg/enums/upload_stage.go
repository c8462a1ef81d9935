package enums

// UploadStage is the step of a delivery reported to progress listeners.
type UploadStage string

const (
	UploadStageCreating        UploadStage = "creating"
	UploadStageUploadingImages UploadStage = "uploading_images"
	UploadStageUploadingTrack  UploadStage = "uploading_track"
	UploadStageCompleted       UploadStage = "completed"
)

var validUploadStages = []UploadStage{
	UploadStageCreating,
	UploadStageUploadingImages,
	UploadStageUploadingTrack,
	UploadStageCompleted,
}

// IsValid reports whether the value matches a known upload stage.
func (s UploadStage) IsValid() bool {
	for _, candidate := range validUploadStages {
		if candidate == s {
			return true
		}
	}
	return false
}
