package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/pkg/geospatial"
)

// buildSchema creates the GraphQL schema wired to our services. Object
// fields resolve through the domain types' json tags.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	geozoneType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Geozone",
		Fields: graphql.Fields{
			"id":              &graphql.Field{Type: graphql.String},
			"account_id":      &graphql.Field{Type: graphql.String},
			"description":     &graphql.Field{Type: graphql.String},
			"points":          &graphql.Field{Type: graphql.NewList(geoPointType)},
			"radius_meters":   &graphql.Field{Type: graphql.Float},
			"priority":        &graphql.Field{Type: graphql.Int},
			"reverse_geocode": &graphql.Field{Type: graphql.Boolean},
			"arrive_notify":   &graphql.Field{Type: graphql.Boolean},
			"depart_notify":   &graphql.Field{Type: graphql.Boolean},
			"updated_at": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					z, ok := p.Source.(domain.Geozone)
					if !ok {
						if zp, okp := p.Source.(*domain.Geozone); okp && zp != nil {
							z, ok = *zp, true
						}
					}
					if !ok || z.UpdatedAt.IsZero() {
						return nil, nil
					}
					return z.UpdatedAt.Format(time.RFC3339), nil
				},
			},
		},
	})

	sphere := deps.Edit.Sphere
	if sphere.RadiusMeters <= 0 {
		sphere = geospatial.Earth
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"geozones": &graphql.Field{
				Type:        graphql.NewList(geozoneType),
				Description: "List an account's geozones",
				Args: graphql.FieldConfigArgument{
					"account_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"offset":     &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":      &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					accountID := p.Args["account_id"].(string)
					offset := p.Args["offset"].(int)
					limit := p.Args["limit"].(int)
					zones, _, err := deps.Geozones.List(p.Context, accountID, offset, limit)
					return zones, err
				},
			},
			"geozone": &graphql.Field{
				Type:        geozoneType,
				Description: "Get a geozone by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Geozones.Get(p.Context, p.Args["id"].(string))
				},
			},
			"containing": &graphql.Field{
				Type:        graphql.NewList(geozoneType),
				Description: "Geozones containing a point",
				Args: graphql.FieldConfigArgument{
					"lat":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pt := domain.GeoPoint{Lat: p.Args["lat"].(float64), Lon: p.Args["lon"].(float64)}
					return deps.Geozones.Containing(p.Context, pt, p.Args["limit"].(int))
				},
			},
			"circle": &graphql.Field{
				Type:        graphql.NewList(geoPointType),
				Description: "Closed circle polygon around a point",
				Args: graphql.FieldConfigArgument{
					"lat":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radius": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"step":   &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: geospatial.DefaultCircleStep},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					center := domain.GeoPoint{Lat: p.Args["lat"].(float64), Lon: p.Args["lon"].(float64)}
					radius := deps.Geozones.Policy().Clamp(p.Args["radius"].(float64))
					return sphere.Circle(center, radius, p.Args["step"].(float64)), nil
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
		// This would be a programming error in the schema definition
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
