package http

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/core/usecases"
)

// queryCoordinate reads lat/lng query parameters. Both must be present and parse.
func queryCoordinate(c *fiber.Ctx) (domain.Coordinate, error) {
	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr == "" || lngStr == "" {
		return domain.Coordinate{}, errors.New("lat and lng are required")
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return domain.Coordinate{}, errors.New("lat must be a number")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return domain.Coordinate{}, errors.New("lng must be a number")
	}
	pt := domain.Coordinate{Lat: lat, Lng: lng}
	if !pt.Valid() {
		return domain.Coordinate{}, errors.New("lat/lng out of range")
	}
	return pt, nil
}

// nearbyQuery parses the shared parameters of the nearby endpoints.
func nearbyQuery(c *fiber.Ctx) (domain.Coordinate, float64, int, error) {
	center, err := queryCoordinate(c)
	if err != nil {
		return center, 0, 0, err
	}
	radius := c.QueryFloat("radius", usecases.DefaultNearbyRadiusM)
	if radius <= 0 || radius > usecases.MaxNearbyRadiusM {
		return center, 0, 0, errors.New("radius must be between 1 and 5000 meters")
	}
	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > usecases.MaxNearbyLimit {
		limit = 20
	}
	return center, radius, limit, nil
}

// ListNotesHandler returns a page of notes, newest first.
func ListNotesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		pg := pageQuery(c, 50, usecases.MaxListLimit)
		notes, total, err := deps.Notes.List(c.UserContext(), pg.Offset, pg.Limit)
		if err != nil {
			return errFromDomain(c, err)
		}
		pg.Total = total
		return sendPage(c, notes, pg)
	}
}

type createNoteRequest struct {
	AuthorID       string  `json:"author_id"`
	Text           string  `json:"text"`
	PhotoURL       string  `json:"photo_url"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	RevealRadiusM  float64 `json:"reveal_radius_m"`
	RevealAngleDeg float64 `json:"reveal_angle_deg"`
}

// CreateNoteHandler stores a new note at a location.
func CreateNoteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req createNoteRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		note, err := deps.Notes.Create(c.UserContext(), usecases.NewNote{
			AuthorID:       req.AuthorID,
			Text:           req.Text,
			PhotoURL:       req.PhotoURL,
			Location:       domain.Coordinate{Lat: req.Lat, Lng: req.Lng},
			RevealRadiusM:  req.RevealRadiusM,
			RevealAngleDeg: req.RevealAngleDeg,
		})
		if err != nil {
			return errFromDomain(c, err)
		}

		LoggerFromCtx(c.UserContext()).Info("note created", "note_id", note.ID, "geocell", note.Geocell)
		c.Set(fiber.HeaderLocation, "/v1/notes/"+note.ID)
		return c.Status(fiber.StatusCreated).JSON(note)
	}
}

// GetNoteHandler returns a single note by ID.
func GetNoteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "note id is required")
		}
		note, err := deps.Notes.GetByID(c.UserContext(), id)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(note)
	}
}

// NearbyNotesHandler returns notes within a radius of a point, closest first.
func NearbyNotesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		center, radius, limit, err := nearbyQuery(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		notes, err := deps.Notes.FindNearby(c.UserContext(), center, radius, limit)
		if err != nil {
			return errFromDomain(c, err)
		}
		if notes == nil {
			notes = []domain.NearbyNote{}
		}
		return c.JSON(notes)
	}
}

// NearbyNotesGeoJSONHandler returns the nearby result as a GeoJSON
// FeatureCollection of points.
func NearbyNotesGeoJSONHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		center, radius, limit, err := nearbyQuery(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		notes, err := deps.Notes.FindNearby(c.UserContext(), center, radius, limit)
		if err != nil {
			return errFromDomain(c, err)
		}

		fc := geojson.NewFeatureCollection()
		for _, n := range notes {
			f := geojson.NewFeature(orb.Point{n.Location.Lng, n.Location.Lat})
			f.ID = n.ID
			f.Properties["author_id"] = n.AuthorID
			f.Properties["text"] = n.Text
			f.Properties["reveal_radius_m"] = n.RevealRadiusM
			f.Properties["distance_m"] = n.DistanceM
			f.Properties["bearing_deg"] = n.BearingDeg
			if n.PhotoURL != "" {
				f.Properties["photo_url"] = n.PhotoURL
			}
			fc.Append(f)
		}

		data, err := fc.MarshalJSON()
		if err != nil {
			return errInternal(c, "encode geojson")
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.Send(data)
	}
}

type locationRequest struct {
	UserID    string   `json:"user_id"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	AccuracyM float64  `json:"accuracy_m"`
	// Available defaults to true; clients send false when the permission is denied.
	Available *bool `json:"available"`
}

var errMissingCoordinate = errors.New("lat and lng are required")

// fix converts the request into a location fix. Coordinates may be omitted
// only when the client reports the location as unavailable.
func (r locationRequest) fix() (domain.LocationFix, error) {
	available := r.Available == nil || *r.Available
	var at domain.Coordinate
	if r.Lat != nil && r.Lng != nil {
		at = domain.Coordinate{Lat: *r.Lat, Lng: *r.Lng}
	} else if available {
		return domain.LocationFix{}, errMissingCoordinate
	}
	return domain.LocationFix{
		Coordinate: at,
		AccuracyM:  r.AccuracyM,
		Available:  available,
		At:         time.Now().UTC(),
	}, nil
}

// EvaluateProximityHandler runs one location fix through the proximity
// notifier synchronously and returns the notifications it produced.
func EvaluateProximityHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req locationRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.UserID == "" {
			return errBadRequest(c, "user_id is required")
		}
		fix, err := req.fix()
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		intents, err := deps.Locations.Evaluate(c.UserContext(), req.UserID, fix)
		if err != nil {
			return errFromDomain(c, err)
		}
		if intents == nil {
			intents = []domain.NotificationIntent{}
		}
		return c.JSON(fiber.Map{"intents": intents})
	}
}

// ReportLocationHandler queues a location fix on the bus for the notifier worker.
func ReportLocationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req locationRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.UserID == "" {
			return errBadRequest(c, "user_id is required")
		}
		fix, err := req.fix()
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		err = deps.Locations.Report(c.UserContext(), req.UserID, fix)
		if errors.Is(err, usecases.ErrNoPublisher) {
			return errUnavailable(c, "location bus not configured")
		}
		if err != nil {
			LoggerFromCtx(c.UserContext()).Warn("location report failed", "user_id", req.UserID, "error", err)
			return errUnavailable(c, "location bus unavailable")
		}
		return c.SendStatus(fiber.StatusAccepted)
	}
}

type frameRequest struct {
	Origin  domain.Coordinate `json:"origin"`
	Targets []struct {
		ID  string  `json:"id"`
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"targets"`
}

// LocalFrameHandler projects targets into the viewer's local frame.
func LocalFrameHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req frameRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Targets) > usecases.MaxNearbyLimit {
			return errBadRequest(c, "too many targets (max 50)")
		}

		targets := make([]usecases.FrameTarget, len(req.Targets))
		for i, t := range req.Targets {
			targets[i] = usecases.FrameTarget{ID: t.ID, Location: domain.Coordinate{Lat: t.Lat, Lng: t.Lng}}
		}

		placed, err := deps.Frames.Project(req.Origin, targets)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"origin": req.Origin, "targets": placed})
	}
}
