package repository

import (
	"context"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"tlu-support/internal/models"
)

type StudentRepository struct {
	students *mongo.Collection
	agents   *mongo.Collection
}

func NewStudentRepository(db *mongo.Database) *StudentRepository {
	return &StudentRepository{
		students: db.Collection(studentsCollection),
		agents:   db.Collection(agentsCollection),
	}
}

func (r *StudentRepository) CreateStudent(ctx context.Context, student *models.Student) error {
	_, err := r.students.InsertOne(ctx, student)
	return duplicateOr(err, "student code")
}

func (r *StudentRepository) GetStudent(ctx context.Context, userID string) (*models.Student, error) {
	var student models.Student
	if err := r.students.FindOne(ctx, bson.M{"_id": userID}).Decode(&student); err != nil {
		return nil, notFoundOr(err, "student")
	}
	return &student, nil
}

func (r *StudentRepository) FindStudentByCode(ctx context.Context, code string) (*models.Student, error) {
	var student models.Student
	if err := r.students.FindOne(ctx, bson.M{"student_code": code}).Decode(&student); err != nil {
		return nil, notFoundOr(err, "student")
	}
	return &student, nil
}

// SearchStudents joins students with their users and pages the result ordered by full name.
func (r *StudentRepository) SearchStudents(ctx context.Context, filter models.StudentFilter) (*models.StudentPage, error) {
	match := bson.M{}
	if filter.Status != "" {
		match["academic_status"] = filter.Status
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$lookup", Value: bson.M{
			"from":         usersCollection,
			"localField":   "_id",
			"foreignField": "_id",
			"as":           "user",
		}}},
		{{Key: "$unwind", Value: "$user"}},
	}

	if filter.Keyword != "" {
		rx := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Keyword), Options: "i"}
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"user.full_name": rx},
			bson.M{"user.email": rx},
			bson.M{"student_code": rx},
		}}}})
	}

	pipeline = append(pipeline, bson.D{{Key: "$facet", Value: bson.M{
		"total": bson.A{bson.M{"$count": "n"}},
		"items": bson.A{
			bson.M{"$sort": bson.D{{Key: "user.full_name", Value: 1}, {Key: "_id", Value: 1}}},
			bson.M{"$skip": int64((filter.Page - 1) * filter.Size)},
			bson.M{"$limit": int64(filter.Size)},
			bson.M{"$project": bson.M{
				"full_name":       "$user.full_name",
				"email":           "$user.email",
				"role":            "$user.role",
				"avatar":          "$user.avatar",
				"phone":           "$user.phone",
				"address":         "$user.address",
				"student_code":    1,
				"class_name":      1,
				"faculty":         1,
				"gpa":             1,
				"academic_status": 1,
				"last_contact":    1,
			}},
		},
	}}})

	cursor, err := r.students.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var result []struct {
		Total []struct {
			N int64 `bson:"n"`
		} `bson:"total"`
		Items []models.StudentProfile `bson:"items"`
	}
	if err := cursor.All(ctx, &result); err != nil {
		return nil, err
	}

	page := &models.StudentPage{Page: filter.Page, Size: filter.Size, Items: []models.StudentProfile{}}
	if len(result) > 0 {
		if len(result[0].Total) > 0 {
			page.Total = result[0].Total[0].N
		}
		if result[0].Items != nil {
			page.Items = result[0].Items
		}
	}
	return page, nil
}

func (r *StudentRepository) CreateAgent(ctx context.Context, agent *models.Agent) error {
	_, err := r.agents.InsertOne(ctx, agent)
	return duplicateOr(err, "agent")
}

func (r *StudentRepository) GetAgent(ctx context.Context, userID string) (*models.Agent, error) {
	var agent models.Agent
	if err := r.agents.FindOne(ctx, bson.M{"_id": userID}).Decode(&agent); err != nil {
		return nil, notFoundOr(err, "agent")
	}
	return &agent, nil
}
