package store

// DDL for the warehouse layers. Raw tables match what the ingestion
// collaborators write; staging and marts tables are owned by the pipeline
// and rebuilt wholesale each run via the _next/swap publish.

var schemaDDL = []string{
	`CREATE SCHEMA IF NOT EXISTS raw`,
	`CREATE SCHEMA IF NOT EXISTS staging`,
	`CREATE SCHEMA IF NOT EXISTS marts`,
	`CREATE SCHEMA IF NOT EXISTS utils`,
}

const rawMessagesDDL = `
CREATE TABLE IF NOT EXISTS raw.telegram_messages (
	id SERIAL PRIMARY KEY,
	message_id BIGINT NOT NULL,
	channel_name VARCHAR(100),
	message_date TIMESTAMP WITH TIME ZONE,
	message_text TEXT,
	has_media BOOLEAN DEFAULT FALSE,
	image_path VARCHAR(500),
	views INTEGER DEFAULT 0,
	forwards INTEGER DEFAULT 0,
	scraped_at TIMESTAMP WITH TIME ZONE,
	raw_data JSONB,
	created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,

	CONSTRAINT unique_message UNIQUE (message_id, channel_name)
)`

const rawDetectionsDDL = `
CREATE TABLE IF NOT EXISTS raw.image_detections (
	id SERIAL PRIMARY KEY,
	message_id BIGINT,
	channel_name VARCHAR(100),
	image_path VARCHAR(500) NOT NULL,
	detected_objects JSONB,
	detection_count INTEGER DEFAULT 0,
	image_category VARCHAR(50),
	processing_date TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
	created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,

	CONSTRAINT unique_detection UNIQUE (message_id, channel_name, image_path)
)`

const dimDatesDDL = `
CREATE TABLE IF NOT EXISTS utils.dim_dates (
	date_key INTEGER PRIMARY KEY,
	full_date DATE NOT NULL,
	day_of_week INTEGER NOT NULL,
	day_name VARCHAR(20) NOT NULL,
	day_of_month INTEGER NOT NULL,
	day_of_year INTEGER NOT NULL,
	week_of_year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	month_name VARCHAR(20) NOT NULL,
	quarter INTEGER NOT NULL,
	year INTEGER NOT NULL,
	is_weekend BOOLEAN NOT NULL,

	CONSTRAINT unique_full_date UNIQUE (full_date)
)`

const stagingMessagesDDL = `
CREATE TABLE %s (
	message_key CHAR(32) NOT NULL,
	message_id BIGINT NOT NULL,
	channel_name VARCHAR(100) NOT NULL,
	message_date TIMESTAMP WITH TIME ZONE NOT NULL,
	message_text TEXT NOT NULL,
	message_length INTEGER NOT NULL,
	hour_of_day INTEGER NOT NULL,
	has_media BOOLEAN NOT NULL,
	image_path VARCHAR(500),
	views INTEGER NOT NULL,
	forwards INTEGER NOT NULL,
	has_medical_keywords BOOLEAN NOT NULL,
	detected_product VARCHAR(50),
	scraped_at TIMESTAMP WITH TIME ZONE,

	CONSTRAINT %s_pk PRIMARY KEY (message_key)
)`

const dimChannelsDDL = `
CREATE TABLE %s (
	channel_key CHAR(32) NOT NULL,
	channel_name VARCHAR(100) NOT NULL,
	channel_display_name VARCHAR(100) NOT NULL,
	channel_type VARCHAR(50) NOT NULL,
	total_posts INTEGER NOT NULL,
	first_post_date TIMESTAMP WITH TIME ZONE NOT NULL,
	last_post_date TIMESTAMP WITH TIME ZONE NOT NULL,
	avg_views DOUBLE PRECISION NOT NULL,
	avg_forwards DOUBLE PRECISION NOT NULL,
	media_posts INTEGER NOT NULL,
	avg_message_length DOUBLE PRECISION NOT NULL,
	media_percentage DOUBLE PRECISION NOT NULL,
	engagement_rate DOUBLE PRECISION NOT NULL,

	CONSTRAINT %s_pk PRIMARY KEY (channel_key)
)`

const fctMessagesDDL = `
CREATE TABLE %s (
	message_key CHAR(32) NOT NULL,
	message_id BIGINT NOT NULL,
	channel_key CHAR(32) NOT NULL,
	date_key INTEGER,
	message_date TIMESTAMP WITH TIME ZONE NOT NULL,
	message_text TEXT NOT NULL,
	message_length INTEGER NOT NULL,
	hour_of_day INTEGER NOT NULL,
	has_media BOOLEAN NOT NULL,
	views INTEGER NOT NULL,
	forwards INTEGER NOT NULL,
	total_engagement INTEGER NOT NULL,
	forward_rate DOUBLE PRECISION NOT NULL,
	has_medical_keywords BOOLEAN NOT NULL,
	detected_product VARCHAR(50),
	mentions_price BOOLEAN NOT NULL,
	mentions_availability BOOLEAN NOT NULL,
	extracted_price_amount NUMERIC(12,2),

	CONSTRAINT %s_pk PRIMARY KEY (message_key)
)`

const fctImageDetectionsDDL = `
CREATE TABLE %s (
	detection_key CHAR(32) NOT NULL,
	message_id BIGINT NOT NULL,
	channel_name VARCHAR(100) NOT NULL,
	image_path VARCHAR(500) NOT NULL,
	object_count INTEGER NOT NULL,
	avg_confidence DOUBLE PRECISION NOT NULL,
	detected_classes TEXT NOT NULL,
	has_person BOOLEAN NOT NULL,
	has_container BOOLEAN NOT NULL,
	has_medical_tool BOOLEAN NOT NULL,
	image_classification VARCHAR(50) NOT NULL,
	image_category VARCHAR(50),
	processing_date TIMESTAMP WITH TIME ZONE,
	message_key CHAR(32),
	channel_key CHAR(32),
	date_key INTEGER,
	views INTEGER,
	forwards INTEGER,
	forward_rate DOUBLE PRECISION,

	CONSTRAINT %s_pk PRIMARY KEY (detection_key)
)`
