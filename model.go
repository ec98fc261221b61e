package hive

import (
	"fmt"
	"strings"
	"time"
)

// RawUpload is the payload handed over by the request layer.
type RawUpload struct {
	Data     []byte
	FileName string
}

// ImageMetadata is the row stored for a successfully ingested image.
type ImageMetadata struct {
	Key          string            `json:"key"`
	Uploader     string            `json:"uploader"`
	UploadedAt   time.Time         `json:"uploaded_at"`
	FileName     string            `json:"file_name"`
	SizeBytes    int64             `json:"size_bytes"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	TakenAt      *time.Time        `json:"taken_at,omitempty"`
	Latitude     *float64          `json:"location_latitude,omitempty"`
	Longitude    *float64          `json:"location_longitude,omitempty"`
	CameraBrand  *string           `json:"camera_brand,omitempty"`
	CameraModel  *string           `json:"camera_model,omitempty"`
	ExposureTime *string           `json:"exposure_time,omitempty"`
	FNumber      *string           `json:"f_number,omitempty"`
	FocalLength  *string           `json:"focal_length,omitempty"`
	Orientation  *int              `json:"orientation,omitempty"`
	Exif         map[string]string `json:"exif,omitempty"`
}

func (m *ImageMetadata) applyExif(rec ExifRecord) {
	m.TakenAt = rec.CapturedAt
	if rec.Location != nil {
		lat, lon := rec.Location.Latitude, rec.Location.Longitude
		m.Latitude = &lat
		m.Longitude = &lon
	}
	m.CameraBrand = rec.CameraMake
	m.CameraModel = rec.CameraModel
	m.ExposureTime = rec.ExposureTime
	m.FNumber = rec.FNumber
	m.FocalLength = rec.FocalLength
	if rec.Orientation != nil {
		o := int(*rec.Orientation)
		m.Orientation = &o
	}
	m.Exif = rec.Raw
}

// ImageMetadataUpdate carries user corrections to the EXIF derived
// fields. Nil or empty fields are left unchanged. The file name is not
// editable since it names the stored original.
type ImageMetadataUpdate struct {
	TakenAt      *time.Time `json:"taken_at"`
	Location     *Location  `json:"location"`
	CameraBrand  *string    `json:"camera_brand"`
	CameraModel  *string    `json:"camera_model"`
	ExposureTime *string    `json:"exposure_time"`
	FNumber      *string    `json:"f_number"`
	FocalLength  *string    `json:"focal_length"`
}

func (u ImageMetadataUpdate) Validate() error {
	if loc := u.Location; loc != nil {
		if loc.Latitude < -90 || loc.Latitude > 90 {
			return fmt.Errorf("latitude %v out of range", loc.Latitude)
		}
		if loc.Longitude < -180 || loc.Longitude > 180 {
			return fmt.Errorf("longitude %v out of range", loc.Longitude)
		}
	}
	return nil
}

// assignments lists the columns to set and their values, in order.
func (u ImageMetadataUpdate) assignments() ([]string, []any) {
	var columns []string
	var args []any
	if u.TakenAt != nil {
		columns = append(columns, "taken_at")
		args = append(args, *u.TakenAt)
	}
	if u.Location != nil {
		columns = append(columns, "location_latitude", "location_longitude")
		args = append(args, u.Location.Latitude, u.Location.Longitude)
	}
	for _, field := range []struct {
		column string
		value  *string
	}{
		{"camera_brand", u.CameraBrand},
		{"camera_model", u.CameraModel},
		{"exposure_time", u.ExposureTime},
		{"f_number", u.FNumber},
		{"focal_length", u.FocalLength},
	} {
		if v := field.value; v != nil && strings.TrimSpace(*v) != "" {
			columns = append(columns, field.column)
			args = append(args, strings.TrimSpace(*v))
		}
	}
	return columns, args
}
