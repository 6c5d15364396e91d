package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
	"github.com/samirrijal/ghostnotes/internal/core/usecases"
)

func noteFields(n domain.Note) map[string]interface{} {
	return map[string]interface{}{
		"id":               n.ID,
		"author_id":        n.AuthorID,
		"text":             n.Text,
		"photo_url":        n.PhotoURL,
		"location":         map[string]interface{}{"lat": n.Location.Lat, "lng": n.Location.Lng},
		"reveal_radius_m":  n.RevealRadiusM,
		"reveal_angle_deg": n.RevealAngleDeg,
		"geocell":          n.Geocell,
		"created_at":       n.CreatedAt,
	}
}

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	noteFieldDefs := func() graphql.Fields {
		return graphql.Fields{
			"id":               &graphql.Field{Type: graphql.String},
			"author_id":        &graphql.Field{Type: graphql.String},
			"text":             &graphql.Field{Type: graphql.String},
			"photo_url":        &graphql.Field{Type: graphql.String},
			"location":         &graphql.Field{Type: geoPointType},
			"reveal_radius_m":  &graphql.Field{Type: graphql.Float},
			"reveal_angle_deg": &graphql.Field{Type: graphql.Float},
			"geocell":          &graphql.Field{Type: graphql.String},
			"created_at":       &graphql.Field{Type: graphql.DateTime},
		}
	}

	noteType := graphql.NewObject(graphql.ObjectConfig{
		Name:   "Note",
		Fields: noteFieldDefs(),
	})

	nearbyFields := noteFieldDefs()
	nearbyFields["distance_m"] = &graphql.Field{Type: graphql.Float}
	nearbyFields["bearing_deg"] = &graphql.Field{Type: graphql.Float}
	nearbyNoteType := graphql.NewObject(graphql.ObjectConfig{
		Name:   "NearbyNote",
		Fields: nearbyFields,
	})

	placedType := graphql.NewObject(graphql.ObjectConfig{
		Name: "PlacedNote",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"x":           &graphql.Field{Type: graphql.Float},
			"z":           &graphql.Field{Type: graphql.Float},
			"distance_m":  &graphql.Field{Type: graphql.Float},
			"bearing_deg": &graphql.Field{Type: graphql.Float},
		},
	})

	nearbyArgs := graphql.FieldConfigArgument{
		"lat":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
		"lng":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
		"radius": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: usecases.DefaultNearbyRadiusM},
		"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
	}

	findNearby := func(p graphql.ResolveParams) ([]domain.NearbyNote, domain.Coordinate, error) {
		center := domain.Coordinate{Lat: p.Args["lat"].(float64), Lng: p.Args["lng"].(float64)}
		radius := p.Args["radius"].(float64)
		limit := p.Args["limit"].(int)
		notes, err := deps.Notes.FindNearby(p.Context, center, radius, limit)
		return notes, center, err
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"note": &graphql.Field{
				Type:        noteType,
				Description: "Get a note by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					note, err := deps.Notes.GetByID(p.Context, p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					return noteFields(*note), nil
				},
			},
			"notesNearby": &graphql.Field{
				Type:        graphql.NewList(nearbyNoteType),
				Description: "Notes near a location, closest first",
				Args:        nearbyArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					notes, _, err := findNearby(p)
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, len(notes))
					for i, n := range notes {
						m := noteFields(n.Note)
						m["distance_m"] = n.DistanceM
						m["bearing_deg"] = n.BearingDeg
						out[i] = m
					}
					return out, nil
				},
			},
			"localFrame": &graphql.Field{
				Type:        graphql.NewList(placedType),
				Description: "Nearby notes placed in the viewer's local frame (meters, x east, z south)",
				Args:        nearbyArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					notes, origin, err := findNearby(p)
					if err != nil {
						return nil, err
					}
					targets := make([]usecases.FrameTarget, len(notes))
					for i, n := range notes {
						targets[i] = usecases.FrameTarget{ID: n.ID, Location: n.Location}
					}
					placed, err := deps.Frames.Project(origin, targets)
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, len(placed))
					for i, pt := range placed {
						out[i] = map[string]interface{}{
							"id":          pt.ID,
							"x":           pt.Point.X,
							"z":           pt.Point.Z,
							"distance_m":  pt.DistanceM,
							"bearing_deg": pt.BearingDeg,
						}
					}
					return out, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
